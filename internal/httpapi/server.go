package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/crm"
	"github.com/example/c2s-leadsync/internal/engine"
	"github.com/example/c2s-leadsync/internal/intake"
	"github.com/example/c2s-leadsync/internal/queue"
	"github.com/example/c2s-leadsync/internal/webhook"
)

const (
	// SecretHeader carries the shared webhook secret.
	SecretHeader    = "X-C2S-Webhook-Secret"
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// WebhookHandler receives normalized CRM callbacks.
type WebhookHandler func(ctx context.Context, lead *webhook.Lead)

// Option customises the server.
type Option func(*Server)

// WithWebhookHandler registers the business handler for CRM callbacks.
func WithWebhookHandler(h WebhookHandler) Option {
	return func(s *Server) {
		if h != nil {
			s.onWebhook = h
		}
	}
}

// Server exposes the engine to collaborators over HTTP.
type Server struct {
	engine    *engine.Engine
	logger    zerolog.Logger
	onWebhook WebhookHandler
	router    chi.Router
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// New builds the router.
func New(eng *engine.Engine, logger zerolog.Logger, opts ...Option) (*Server, error) {
	if eng == nil {
		return nil, errors.New("httpapi: engine is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	s := &Server{
		engine:    eng,
		logger:    logger.With().Str("component", "http_api").Logger(),
		onWebhook: func(context.Context, *webhook.Lead) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/leads", s.submitLead)
		r.Post("/leads/{id}/tags", s.updateTags)
		r.Post("/leads/{id}/visits", s.createVisit)
		r.Post("/leads/{id}/done", s.markDone)
		r.Post("/webhooks/c2s", s.receiveWebhook)
		r.Get("/queue", s.listQueue)
		r.Post("/queue/process", s.processQueue)
		r.Delete("/queue/{id}", s.removeQueued)
		r.Get("/sellers", s.sellers)
		r.Get("/distribution-queues", s.distributionQueues)
	})
	s.router = r
	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	status := http.StatusOK
	if !h.CRM.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) submitLead(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	sub, err := intake.DecodeSubmission(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "corpo da requisição inválido", err.Error())
		return
	}

	out := s.engine.Submit(r.Context(), sub)
	writeJSON(w, outcomeStatus(out), out)
}

func outcomeStatus(out engine.Outcome) int {
	switch {
	case out.Success && !out.Duplicate:
		return http.StatusCreated
	case out.Accepted():
		return http.StatusAccepted
	}
	return resultStatus(out.LeadResult)
}

func resultStatus(res crm.LeadResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch crm.Classify(res.Err) {
	case crm.ErrValidation:
		return http.StatusUnprocessableEntity
	case crm.ErrConfiguration:
		return http.StatusServiceUnavailable
	case crm.ErrTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

func (s *Server) updateTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.engine.Provider().UpdateLeadTags(r.Context(), chi.URLParam(r, "id"), req.Tags)
	writeJSON(w, resultStatus(res), res)
}

func (s *Server) createVisit(w http.ResponseWriter, r *http.Request) {
	var visit crm.VisitInput
	if !s.decode(w, r, &visit) {
		return
	}
	visit.LeadID = chi.URLParam(r, "id")
	res := s.engine.Provider().CreateVisitActivity(r.Context(), visit)
	writeJSON(w, resultStatus(res), res)
}

func (s *Server) markDone(w http.ResponseWriter, r *http.Request) {
	var deal crm.DealInput
	if !s.decode(w, r, &deal) {
		return
	}
	deal.LeadID = chi.URLParam(r, "id")
	res := s.engine.Provider().MarkDoneDeal(r.Context(), deal)
	writeJSON(w, resultStatus(res), res)
}

type webhookResponse struct {
	Accepted bool          `json:"accepted"`
	Lead     *webhook.Lead `json:"lead,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// receiveWebhook answers 2xx for malformed payloads too: they are dropped
// and logged, and the CRM must not redeliver them.
func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()
	if !cfg.Flags.WebhookEnabled {
		writeError(w, http.StatusNotFound, "not_found", "webhooks desativados")
		return
	}
	secret := r.Header.Get(SecretHeader)
	if secret == "" {
		secret = r.URL.Query().Get("secret")
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(cfg.C2S.WebhookSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized", "segredo do webhook inválido")
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	lead, err := s.engine.Webhooks().Normalize(body)
	if err != nil {
		writeJSON(w, http.StatusAccepted, webhookResponse{Accepted: false, Reason: err.Error()})
		return
	}
	s.onWebhook(r.Context(), lead)
	writeJSON(w, http.StatusOK, webhookResponse{Accepted: true, Lead: lead})
}

type queueResponse struct {
	Stats   queue.Stats        `json:"stats"`
	Entries []queue.QueuedLead `json:"entries"`
}

func (s *Server) listQueue(w http.ResponseWriter, _ *http.Request) {
	q := s.engine.Queue()
	writeJSON(w, http.StatusOK, queueResponse{Stats: q.Stats(), Entries: q.List()})
}

// processQueue finishes the run even if the caller goes away; each attempt
// is still bounded by the queue's attempt timeout.
func (s *Server) processQueue(w http.ResponseWriter, r *http.Request) {
	report, ran := s.engine.Queue().ProcessDue(context.WithoutCancel(r.Context()))
	if !ran {
		writeError(w, http.StatusConflict, "conflict", "processamento da fila já em andamento")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) removeQueued(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Queue().Remove(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "lead não encontrado na fila")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sellers(w http.ResponseWriter, r *http.Request) {
	p := s.engine.C2S()
	if p == nil {
		writeError(w, http.StatusNotFound, "not_found", "vendedores indisponíveis para este provedor")
		return
	}
	sellers, err := p.Sellers(r.Context())
	if err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sellers)
}

func (s *Server) distributionQueues(w http.ResponseWriter, r *http.Request) {
	p := s.engine.C2S()
	if p == nil {
		writeError(w, http.StatusNotFound, "not_found", "filas de distribuição indisponíveis para este provedor")
		return
	}
	queues, err := p.DistributionQueues(r.Context())
	if err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queues)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "corpo da requisição muito grande")
		return nil, false
	}
	return body, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, ok := s.readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "corpo da requisição inválido", err.Error())
		return false
	}
	return true
}

func writeProviderError(w http.ResponseWriter, err error) {
	status := resultStatus(crm.LeadResult{Err: err})
	var apiErr *crm.APIError
	var details []string
	if errors.As(err, &apiErr) {
		details = apiErr.Details()
	}
	writeError(w, status, strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_"), err.Error(), details...)
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message, Details: details}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
