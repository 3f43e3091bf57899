package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"itsm-ticket-bridge/internal/domain"
	"itsm-ticket-bridge/internal/domain/model"
	"itsm-ticket-bridge/internal/domain/ports/adapter"
	"itsm-ticket-bridge/internal/infra/logging"
	"itsm-ticket-bridge/internal/infra/metrics"
	"itsm-ticket-bridge/internal/usecase"
)

// Server is the thin ops/API surface over the synchronization engine. It
// translates HTTP to engine calls and back; no business rules live here.
type Server struct {
	uc     usecase.RequestUseCase
	client adapter.TicketingClient
	auth   *AuthManager
	log    *zerolog.Logger
}

func NewServer(uc usecase.RequestUseCase, client adapter.TicketingClient, auth *AuthManager, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{uc: uc, client: client, auth: auth, log: &l}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID)
	r.Use(RequestLog(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/requests", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/", s.handleSubmit)
		r.Post("/{id}/retry", s.handleRetry)
		r.Post("/{id}/cancel", s.handleCancel)
		r.Post("/{id}/sync", s.handleSync)
		r.Get("/{id}/tickets", s.handleListTickets)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if !s.client.HealthCheck(ctx) {
		http.Error(w, "remote unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type submitTicketDTO struct {
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Priority        string                 `json:"priority"`
	Category        string                 `json:"category"`
	Subcategory     string                 `json:"subcategory"`
	AssignmentGroup string                 `json:"assignmentGroup"`
	Fields          map[string]interface{} `json:"fields"`
}

type submitDTO struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Priority    string                 `json:"priority"`
	Payload     map[string]interface{} `json:"payload"`
	Tickets     []submitTicketDTO      `json:"tickets"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var dto submitDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	in := usecase.SubmitInput{
		RequestedBy: principal,
		Title:       dto.Title,
		Description: dto.Description,
		Priority:    model.Priority(dto.Priority),
		Payload:     dto.Payload,
	}
	for _, t := range dto.Tickets {
		in.Tickets = append(in.Tickets, usecase.TicketInput{
			Title:           t.Title,
			Description:     t.Description,
			Priority:        model.Priority(t.Priority),
			Category:        t.Category,
			Subcategory:     t.Subcategory,
			AssignmentGroup: t.AssignmentGroup,
			Fields:          t.Fields,
		})
	}

	metrics.IncRequestSubmitted()
	res, err := s.uc.SubmitAndCreate(r.Context(), in)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	metrics.IncRequestOutcome(string(res.Status))
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	r = withRequestID(r)
	// A non-nil request alongside an error means the retry was consumed but
	// the creation attempt failed again; the caller still gets the request
	// with its fresh failure reason.
	req, err := s.uc.Retry(r.Context(), chi.URLParam(r, "id"))
	if req == nil {
		s.writeErr(w, r, err)
		return
	}
	metrics.IncRequestRetried()
	metrics.IncRequestOutcome(string(req.Status))
	s.writeJSON(w, http.StatusOK, requestDTO(req))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	r = withRequestID(r)
	req, err := s.uc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	metrics.IncRequestOutcome(string(req.Status))
	s.writeJSON(w, http.StatusOK, requestDTO(req))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	r = withRequestID(r)
	n, err := s.uc.SyncStatuses(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	metrics.AddTicketsSynced(n)
	s.writeJSON(w, http.StatusOK, map[string]int{"synced": n})
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	r = withRequestID(r)
	tickets, err := s.uc.ListTicketsForRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, ticketDTO(t))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func requestDTO(req *model.Request) map[string]interface{} {
	dto := map[string]interface{}{
		"id":         req.ID,
		"title":      req.Title,
		"status":     req.Status,
		"priority":   req.Priority,
		"retryCount": req.RetryCount,
		"maxRetries": req.MaxRetries,
	}
	if req.FailureReason != nil {
		dto["failureReason"] = *req.FailureReason
	}
	return dto
}

func ticketDTO(t *model.Ticket) map[string]interface{} {
	dto := map[string]interface{}{
		"id":         t.ID,
		"requestId":  t.RequestID,
		"title":      t.Title,
		"status":     t.Status,
		"priority":   t.Priority,
		"syncStatus": t.SyncStatus,
	}
	if t.ExternalID != nil {
		dto["externalId"] = *t.ExternalID
	}
	if t.ReferenceNumber != nil {
		dto["referenceNumber"] = *t.ReferenceNumber
	}
	if t.SyncError != nil {
		dto["syncError"] = *t.SyncError
	}
	if t.ClosedInExternalAt != nil {
		dto["closedInExternalAt"] = t.ClosedInExternalAt
	}
	return dto
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var rejection *domain.RemoteRejection
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrRequestNotRetryable), errors.Is(err, domain.ErrRequestTerminal):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &rejection):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request handling failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// withRequestID tags the request context with the aggregate id from the URL
// so log lines from this call carry it.
func withRequestID(r *http.Request) *http.Request {
	if id := chi.URLParam(r, "id"); id != "" {
		return r.WithContext(logging.WithRequestID(r.Context(), id))
	}
	return r
}
