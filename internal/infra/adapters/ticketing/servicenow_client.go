// File: internal/infra/adapters/ticketing/servicenow_client.go
package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"itsm-ticket-bridge/internal/domain"
	"itsm-ticket-bridge/internal/domain/ports/adapter"
	"itsm-ticket-bridge/internal/infra/metrics"
)

var _ adapter.TicketingClient = (*SNowClient)(nil)

// callTimeout is fixed per remote call. The client never retries; retry
// policy lives in the synchronization engine so it stays independently
// testable.
const callTimeout = 30 * time.Second

// SNowClient talks to a ServiceNow-style ticketing REST API using basic
// auth. It owns its transport configuration.
type SNowClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

func NewSNowClient(baseURL, username, password string) (*SNowClient, error) {
	if baseURL == "" {
		return nil, errors.New("base url empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	return &SNowClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		client:   &http.Client{Timeout: callTimeout},
	}, nil
}

func (c *SNowClient) Name() string { return "servicenow" }

func (c *SNowClient) endpoint(path string) string { return c.baseURL + path }

// createPayload is the wire form of one ticket creation.
type createPayload struct {
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Priority        string                 `json:"priority"`
	Category        string                 `json:"category,omitempty"`
	Subcategory     string                 `json:"subcategory,omitempty"`
	AssignmentGroup string                 `json:"assignmentGroup,omitempty"`
	Extra           map[string]interface{} `json:"extra,omitempty"`
}

type createResponse struct {
	ExternalID      string                 `json:"externalId"`
	ReferenceNumber string                 `json:"referenceNumber"`
	Extra           map[string]interface{} `json:"extra"`
}

type itemError struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func toPayload(req adapter.TicketRequest) createPayload {
	return createPayload{
		Title:           req.Title,
		Description:     req.Description,
		Priority:        req.Priority,
		Category:        req.Category,
		Subcategory:     req.Subcategory,
		AssignmentGroup: req.AssignmentGroup,
		Extra:           req.Extra,
	}
}

func (c *SNowClient) CreateTicket(ctx context.Context, req adapter.TicketRequest) (adapter.TicketCreateResult, error) {
	var out createResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tickets", toPayload(req), &out); err != nil {
		metrics.IncRemoteCall(c.Name(), "create", "failed")
		return adapter.TicketCreateResult{}, err
	}
	if out.ExternalID == "" || out.ReferenceNumber == "" {
		metrics.IncRemoteCall(c.Name(), "create", "failed")
		return adapter.TicketCreateResult{}, &domain.TransportError{Op: "create", Err: errors.New("incomplete identity in response")}
	}
	metrics.IncRemoteCall(c.Name(), "create", "success")
	return adapter.TicketCreateResult{
		ExternalID:      out.ExternalID,
		ReferenceNumber: out.ReferenceNumber,
		Fields:          out.Extra,
	}, nil
}

// CreateBatch posts all tickets in one call. The remote answers with one
// entry per input, in order; each entry is either an identity or an error.
func (c *SNowClient) CreateBatch(ctx context.Context, reqs []adapter.TicketRequest) []adapter.BatchItemResult {
	payload := struct {
		Tickets []createPayload `json:"tickets"`
	}{Tickets: make([]createPayload, 0, len(reqs))}
	for _, r := range reqs {
		payload.Tickets = append(payload.Tickets, toPayload(r))
	}

	var out struct {
		Results []struct {
			createResponse
			Error *itemError `json:"error,omitempty"`
		} `json:"results"`
	}

	start := time.Now()
	err := c.do(ctx, http.MethodPost, "/api/v1/tickets/batch", payload, &out)
	metrics.ObserveBatchLatency(c.Name(), time.Since(start))
	if err != nil {
		// Whole-call failure: every item shares the same outcome.
		metrics.IncRemoteCall(c.Name(), "batch_create", "failed")
		results := make([]adapter.BatchItemResult, len(reqs))
		for i := range results {
			results[i] = adapter.BatchItemResult{Err: err}
		}
		return results
	}
	metrics.IncRemoteCall(c.Name(), "batch_create", "success")

	results := make([]adapter.BatchItemResult, len(reqs))
	for i := range reqs {
		if i >= len(out.Results) {
			results[i] = adapter.BatchItemResult{Err: &domain.TransportError{Op: "batch_create", Err: errors.New("missing result for batch item")}}
			continue
		}
		item := out.Results[i]
		if item.Error != nil {
			results[i] = adapter.BatchItemResult{Err: &domain.RemoteRejection{Code: item.Error.Code, Reason: item.Error.Reason}}
			metrics.IncTicketCreate("failed")
			continue
		}
		if item.ExternalID == "" || item.ReferenceNumber == "" {
			results[i] = adapter.BatchItemResult{Err: &domain.TransportError{Op: "batch_create", Err: errors.New("incomplete identity in batch item")}}
			metrics.IncTicketCreate("failed")
			continue
		}
		results[i] = adapter.BatchItemResult{Result: adapter.TicketCreateResult{
			ExternalID:      item.ExternalID,
			ReferenceNumber: item.ReferenceNumber,
			Fields:          item.Extra,
		}}
		metrics.IncTicketCreate("success")
	}
	return results
}

func (c *SNowClient) FetchStatus(ctx context.Context, externalID string) (adapter.RemoteTicketState, error) {
	var out struct {
		ExternalID      string     `json:"externalId"`
		ReferenceNumber string     `json:"referenceNumber"`
		State           string     `json:"state"`
		Assignee        string     `json:"assignee"`
		OpenedAt        *time.Time `json:"openedAt"`
		ClosedAt        *time.Time `json:"closedAt"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tickets/"+url.PathEscape(externalID), nil, &out); err != nil {
		metrics.IncRemoteCall(c.Name(), "fetch_status", "failed")
		return adapter.RemoteTicketState{}, err
	}
	metrics.IncRemoteCall(c.Name(), "fetch_status", "success")
	return adapter.RemoteTicketState{
		ExternalID:      out.ExternalID,
		ReferenceNumber: out.ReferenceNumber,
		State:           out.State,
		Assignee:        out.Assignee,
		OpenedAt:        out.OpenedAt,
		ClosedAt:        out.ClosedAt,
	}, nil
}

func (c *SNowClient) UpdateStatus(ctx context.Context, externalID, state string, extra map[string]interface{}) error {
	payload := map[string]interface{}{"state": state}
	if len(extra) > 0 {
		payload["extra"] = extra
	}
	err := c.do(ctx, http.MethodPatch, "/api/v1/tickets/"+url.PathEscape(externalID)+"/status", payload, nil)
	if err != nil {
		metrics.IncRemoteCall(c.Name(), "update_status", "failed")
		return err
	}
	metrics.IncRemoteCall(c.Name(), "update_status", "success")
	return nil
}

// HealthCheck probes connectivity only; business decisions never hinge on
// it.
func (c *SNowClient) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/v1/health"), nil)
	if err != nil {
		return false
	}
	req.SetBasicAuth(c.username, c.password)
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// do executes one JSON round-trip and translates failures into the domain
// taxonomy: transport/5xx problems become TransportError, 4xx become
// RemoteRejection.
func (c *SNowClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &domain.TransportError{Op: path, Err: err}
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), rdr)
	if err != nil {
		return &domain.TransportError{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fallthrough to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var e struct {
			Error itemError `json:"error"`
		}
		reason := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error.Reason != "" {
			reason = e.Error.Reason
		}
		return &domain.RemoteRejection{Code: resp.StatusCode, Reason: reason}
	default:
		return &domain.TransportError{Op: path, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{Op: path, Err: err}
	}
	return nil
}
