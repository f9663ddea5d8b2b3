// Package report assembles the daily activity summary from the ledger and
// seen store.
package report

import (
	"context"
	"fmt"
	"time"

	"outreachd/internal/domain"
)

// Ledger is the slice of the action ledger the report reads.
type Ledger interface {
	CountsByDate(ctx context.Context, date time.Time) ([]domain.ActionCount, error)
	Pending(ctx context.Context, date time.Time) ([]domain.ActionRecord, error)
}

// SeenCounter reports seen-entity totals.
type SeenCounter interface {
	Count(ctx context.Context, entityType domain.EntityType) (int, error)
}

// Daily is the summary for one UTC calendar day.
type Daily struct {
	Date      string                `json:"date"`
	Counts    []domain.ActionCount  `json:"counts"`
	Pending   []domain.ActionRecord `json:"pending"`
	SeenTotal int                   `json:"seen_total"`
}

// Build assembles the report for the UTC day containing date.
func Build(ctx context.Context, led Ledger, seen SeenCounter, date time.Time) (*Daily, error) {
	counts, err := led.CountsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("counts by date: %w", err)
	}
	pending, err := led.Pending(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("pending by date: %w", err)
	}
	total, err := seen.Count(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("seen count: %w", err)
	}
	return &Daily{
		Date:      date.UTC().Format("2006-01-02"),
		Counts:    counts,
		Pending:   pending,
		SeenTotal: total,
	}, nil
}
