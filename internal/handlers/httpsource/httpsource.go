// Package httpsource fetches candidate events from an HTTP endpoint
// returning a JSON array of raw events.
package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"outreachd/internal/domain"
)

// Source implements poller.EventSource over HTTP. The since/until window is
// passed as RFC3339 query parameters.
type Source struct {
	endpoint string
	client   *http.Client
}

func New(endpoint string, timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Source{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *Source) FetchCandidates(ctx context.Context, since, until time.Time) ([]domain.RawEvent, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse source endpoint: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("until", until.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("source endpoint returned %d: %s", resp.StatusCode, string(msg))
	}

	var events []domain.RawEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}
