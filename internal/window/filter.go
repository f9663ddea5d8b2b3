// Package window selects the newly eligible subset of a batch of raw
// external events.
package window

import (
	"context"
	"fmt"
	"strings"
	"time"

	"outreachd/internal/domain"
)

// SeenChecker answers whether an entity was already surfaced.
type SeenChecker interface {
	Has(ctx context.Context, entityType domain.EntityType, entityID string) (bool, error)
}

// ActionLookup finds the latest ledger record for a tuple. It backs the
// second dedup check: an entity can be seen with no ledger record (crash
// between claim and log), and older ledgers may hold records for entities
// that were never marked.
type ActionLookup interface {
	Latest(ctx context.Context, actionType domain.ActionType, entityType domain.EntityType, entityID string) (*domain.ActionRecord, error)
}

// Predicate is the domain-specific eligibility test. A nil predicate passes
// everything.
type Predicate func(domain.RawEvent) bool

// Filter narrows candidate batches to events that concluded inside the
// lookback window and were never surfaced before.
type Filter struct {
	seen   SeenChecker
	ledger ActionLookup
}

func New(seen SeenChecker, ledger ActionLookup) *Filter {
	return &Filter{seen: seen, ledger: ledger}
}

// Eligible returns, in stable input order, the events that:
//
//  1. carry well-formed start and end timestamps,
//  2. ended inside (cutoff, now] — an event ending exactly at cutoff is too
//     old, one ending after now hasn't concluded,
//  3. are in neither the seen store nor the ledger for actionType,
//  4. pass the eligibility predicate.
//
// Checks run in that order so store lookups and the predicate are skipped
// for events the cheap structural checks already reject. Store errors abort
// the whole pass; a partial answer here risks duplicate surfacing.
func (f *Filter) Eligible(ctx context.Context, events []domain.RawEvent, cutoff, now time.Time, actionType domain.ActionType, pred Predicate) ([]domain.EligibleEvent, error) {
	var eligible []domain.EligibleEvent
	for _, ev := range events {
		if ev.StartsAt == nil || ev.EndsAt == nil {
			continue
		}
		end := *ev.EndsAt
		if !end.After(cutoff) || end.After(now) {
			continue
		}
		seen, err := f.seen.Has(ctx, ev.EntityType, ev.EntityID)
		if err != nil {
			return nil, fmt.Errorf("seen lookup for %s/%s: %w", ev.EntityType, ev.EntityID, err)
		}
		if seen {
			continue
		}
		rec, err := f.ledger.Latest(ctx, actionType, ev.EntityType, ev.EntityID)
		if err != nil {
			return nil, fmt.Errorf("ledger lookup for %s/%s: %w", ev.EntityType, ev.EntityID, err)
		}
		if rec != nil {
			continue
		}
		if pred != nil && !pred(ev) {
			continue
		}
		eligible = append(eligible, domain.EligibleEvent{Event: ev, External: true})
	}
	return eligible, nil
}

// ExternalAttendee returns a predicate that passes events with at least one
// attendee address outside orgDomain.
func ExternalAttendee(orgDomain string) Predicate {
	orgDomain = strings.ToLower(orgDomain)
	return func(ev domain.RawEvent) bool {
		for _, addr := range ev.Attendees {
			at := strings.LastIndex(addr, "@")
			if at < 0 {
				continue
			}
			if strings.ToLower(addr[at+1:]) != orgDomain {
				return true
			}
		}
		return false
	}
}
