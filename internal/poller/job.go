// Package poller implements the discovery cycle: fetch candidate events,
// narrow them to the newly eligible subset, claim each entity in the seen
// store, record a pending ledger entry, then hand off to the action
// collaborator.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"outreachd/internal/domain"
	"outreachd/internal/metrics"
	"outreachd/internal/window"
)

// EventSource fetches raw external events observed within a time window.
// Implemented by platform adapters; failures are treated as transient.
type EventSource interface {
	FetchCandidates(ctx context.Context, since, until time.Time) ([]domain.RawEvent, error)
}

// ActionPerformer executes the side-effecting action against an external
// platform.
type ActionPerformer interface {
	Perform(ctx context.Context, actionType domain.ActionType, ev domain.EligibleEvent) error
}

// Ledger is the slice of the action ledger the job writes to.
type Ledger interface {
	Log(ctx context.Context, actionType domain.ActionType, entityType domain.EntityType, entityID string, payload json.RawMessage) (string, error)
	UpdateStatus(ctx context.Context, id string, status domain.ActionStatus, errorMessage *string, payload json.RawMessage) error
}

// SeenStore marks entities as surfaced. Claim reports whether the caller
// won the mark; concurrent claimants for the same entity see exactly one
// true result.
type SeenStore interface {
	Claim(ctx context.Context, entityType domain.EntityType, entityID string) (bool, error)
}

// Config wires one discovery job.
type Config struct {
	TaskID     string
	ActionType domain.ActionType
	Lookback   time.Duration
	Source     EventSource
	Performer  ActionPerformer
	Ledger     Ledger
	Seen       SeenStore
	Filter     *window.Filter
	Predicate  window.Predicate
	Metrics    *metrics.Metrics
}

// Job is one scheduled discovery cycle. Run matches scheduler.Handler.
type Job struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Job {
	return &Job{cfg: cfg, now: time.Now}
}

// SetClock overrides the time source used to compute the lookback window.
func (j *Job) SetClock(now func() time.Time) { j.now = now }

// Run executes one cycle. Any error ends the cycle early: events already
// marked seen stay seen, events not yet reached stay eligible for the next
// cycle. The scheduler logs the returned error and keeps the timer alive.
func (j *Job) Run(ctx context.Context) (err error) {
	defer func() {
		if j.cfg.Metrics != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			j.cfg.Metrics.JobRuns.WithLabelValues(j.cfg.TaskID, result).Inc()
		}
	}()

	now := j.now().UTC()
	cutoff := now.Add(-j.cfg.Lookback)

	events, err := j.cfg.Source.FetchCandidates(ctx, cutoff, now)
	if err != nil {
		return fmt.Errorf("fetch candidates: %w", err)
	}

	eligible, err := j.cfg.Filter.Eligible(ctx, events, cutoff, now, j.cfg.ActionType, j.cfg.Predicate)
	if err != nil {
		return fmt.Errorf("filter events: %w", err)
	}

	for _, ev := range eligible {
		if err := j.surface(ctx, ev); err != nil {
			return err
		}
	}

	if len(eligible) > 0 {
		log.Info().Str("task_id", j.cfg.TaskID).Int("surfaced", len(eligible)).Msg("discovery cycle surfaced events")
	}
	return nil
}

// surface handles a single eligible event: seen claim first, pending record
// second, action last. The claim is the atomic check-and-mark for the
// entity, so two tasks racing on the same event surface it once; losing the
// claim means another task already owns it and the event is skipped.
func (j *Job) surface(ctx context.Context, ev domain.EligibleEvent) error {
	entity := ev.Event

	claimed, err := j.cfg.Seen.Claim(ctx, entity.EntityType, entity.EntityID)
	if err != nil {
		return fmt.Errorf("mark seen %s/%s: %w", entity.EntityType, entity.EntityID, err)
	}
	if !claimed {
		log.Debug().Str("task_id", j.cfg.TaskID).
			Str("entity_type", string(entity.EntityType)).Str("entity_id", entity.EntityID).
			Msg("entity claimed by another task, skipping")
		return nil
	}

	recordID, err := j.cfg.Ledger.Log(ctx, j.cfg.ActionType, entity.EntityType, entity.EntityID, entity.Payload)
	if err != nil {
		return fmt.Errorf("log action for %s/%s: %w", entity.EntityType, entity.EntityID, err)
	}
	if j.cfg.Metrics != nil {
		j.cfg.Metrics.EventsSurfaced.WithLabelValues(string(entity.EntityType)).Inc()
	}

	if err := j.cfg.Performer.Perform(ctx, j.cfg.ActionType, ev); err != nil {
		msg := err.Error()
		if uerr := j.cfg.Ledger.UpdateStatus(ctx, recordID, domain.StatusFailed, &msg, nil); uerr != nil {
			log.Error().Err(uerr).Str("record_id", recordID).Msg("failed to record action failure")
		}
		j.observeAction(domain.StatusFailed)
		return fmt.Errorf("perform %s for %s/%s: %w", j.cfg.ActionType, entity.EntityType, entity.EntityID, err)
	}

	if err := j.cfg.Ledger.UpdateStatus(ctx, recordID, domain.StatusSucceeded, nil, nil); err != nil {
		return fmt.Errorf("record action success %s: %w", recordID, err)
	}
	j.observeAction(domain.StatusSucceeded)
	return nil
}

func (j *Job) observeAction(status domain.ActionStatus) {
	if j.cfg.Metrics != nil {
		j.cfg.Metrics.Actions.WithLabelValues(string(j.cfg.ActionType), string(status)).Inc()
	}
}
