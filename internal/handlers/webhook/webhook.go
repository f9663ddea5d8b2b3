// Package webhook performs outbound actions by posting them to an external
// automation endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"outreachd/internal/domain"
)

// Performer implements poller.ActionPerformer over HTTP. The endpoint is
// expected to execute the platform side effect and answer 2xx.
type Performer struct {
	endpoint string
	client   *http.Client
}

func New(endpoint string, timeout time.Duration) *Performer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Performer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type actionRequest struct {
	ActionType domain.ActionType `json:"action_type"`
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Title      string            `json:"title,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

func (p *Performer) Perform(ctx context.Context, actionType domain.ActionType, ev domain.EligibleEvent) error {
	body, err := json.Marshal(actionRequest{
		ActionType: actionType,
		EntityType: ev.Event.EntityType,
		EntityID:   ev.Event.EntityID,
		Title:      ev.Event.Title,
		Payload:    ev.Event.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal action request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create action request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("perform action: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("action endpoint returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
