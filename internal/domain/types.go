// Package domain defines the types shared across outreachd.
package domain

import (
	"encoding/json"
	"time"
)

// ActionType identifies the kind of outbound action recorded in the ledger.
type ActionType string

const (
	ActionConnectionRequest ActionType = "connection_request"
	ActionCreateDraft       ActionType = "create_draft"
	ActionComment           ActionType = "comment"
	ActionLike              ActionType = "like"
	ActionSendMessage       ActionType = "send_message"
)

// ActionStatus is the lifecycle state of an action record. Records start
// pending and move to exactly one of succeeded or failed, never back.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusSucceeded ActionStatus = "succeeded"
	StatusFailed    ActionStatus = "failed"
)

// EntityType classifies an externally observed object.
type EntityType string

const (
	EntityPost    EntityType = "post"
	EntityMeeting EntityType = "meeting"
	EntityProfile EntityType = "profile"
)

// ActionRecord is one attempted outbound action in the ledger. Multiple
// records may exist for the same (ActionType, EntityType, EntityID) tuple;
// history is append-oriented and the latest record is the one with the
// greatest CreatedAt.
type ActionRecord struct {
	ID           string          `json:"id"`
	ActionType   ActionType      `json:"action_type"`
	EntityType   EntityType      `json:"entity_type"`
	EntityID     string          `json:"entity_id"`
	Status       ActionStatus    `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ActionCount is one row of the per-day (action_type, status) aggregate.
type ActionCount struct {
	ActionType ActionType   `json:"action_type"`
	Status     ActionStatus `json:"status"`
	Count      int          `json:"count"`
}

// RawEvent is a candidate event as returned by an external source, before
// window filtering. StartsAt/EndsAt are pointers because external data is
// allowed to be malformed; events missing either are filtered out.
type RawEvent struct {
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Title      string          `json:"title,omitempty"`
	StartsAt   *time.Time      `json:"starts_at,omitempty"`
	EndsAt     *time.Time      `json:"ends_at,omitempty"`
	Attendees  []string        `json:"attendees,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EligibleEvent is a RawEvent that survived the window filter. It is
// consumed within a single polling cycle and never persisted.
type EligibleEvent struct {
	Event    RawEvent
	External bool
}

// TaskStatus is a point-in-time snapshot of one scheduled task.
type TaskStatus struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	IntervalMinutes int        `json:"interval_minutes,omitempty"`
	CronExpr        string     `json:"cron_expr,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	NextRunAt       time.Time  `json:"next_run_at"`
}
