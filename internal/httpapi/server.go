package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/authority"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/chain"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/conversation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/generation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/ledger"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/service"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/store"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/types"
)

const (
	defaultPageSize = 200
	maxPageSize     = 1000
)

// Dependencies wires the API. Archive and Gatherer are optional: without an
// archive /v1/archive/verify answers 404, and without a gatherer /metrics is
// not mounted.
type Dependencies struct {
	Logger   *log.Logger
	Addr     string
	Governor *service.Governor
	Ledger   *ledger.Ledger
	Gate     *authority.Gate
	Archive  store.EvidenceStore
	Gatherer prometheus.Gatherer
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	governor   *service.Governor
	ledger     *ledger.Ledger
	gate       *authority.Gate
	archive    store.EvidenceStore
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		logger:   d.Logger,
		governor: d.Governor,
		ledger:   d.Ledger,
		gate:     d.Gate,
		archive:  d.Archive,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(d.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.handleSubmit)
		r.Get("/messages", s.handleListMessages)
		r.Get("/messages/{id}", s.handleGetMessage)
		r.Post("/messages/{id}/quarantine", s.handleQuarantine)
		r.Post("/messages/{id}/retry", s.handleRetry)
		r.Post("/exchange", s.handleExchange)
		r.Get("/context", s.handleContext)

		r.Get("/ledger", s.handleLedger)
		r.Get("/ledger/verify", s.handleVerifyLedger)
		r.Get("/archive/verify", s.handleVerifyArchive)

		r.Get("/authority", s.handleAuthority)
		r.Post("/authority/connect", s.handleConnect)
		r.Post("/authority/disconnect", s.handleDisconnect)
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ── Messages ─────────────────────────────────────────────────────────────────

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	out, err := s.governor.Submit(r.Context(), service.SubmitRequest{
		Role:    conversation.Role(req.Role),
		Text:    req.Text,
		Subject: req.Subject,
	})
	if err != nil {
		if errors.Is(err, service.ErrAuthorizationAborted) {
			respond(w, r, http.StatusConflict, outcomeToView(out))
			return
		}
		s.writeServiceError(w, "submit", err)
		return
	}
	respond(w, r, http.StatusCreated, outcomeToView(out))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	out, err := s.governor.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrAuthorizationAborted) {
			respond(w, r, http.StatusConflict, outcomeToView(out))
			return
		}
		s.writeServiceError(w, "retry", err)
		return
	}
	respond(w, r, http.StatusOK, outcomeToView(out))
}

func (s *Server) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	var req types.QuarantineRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	out, err := s.governor.Quarantine(chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.writeServiceError(w, "quarantine", err)
		return
	}
	respond(w, r, http.StatusOK, outcomeToView(out))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, types.MessageList{Messages: messagesToView(s.governor.Messages())})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, ok := s.governor.Message(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "message not found: "+id)
		return
	}
	respond(w, r, http.StatusOK, types.MessageDetail{
		Message: messageToView(msg),
		Events:  eventsToView(s.ledger.ForMessage(id)),
	})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, types.MessageList{Messages: messagesToView(s.governor.ActiveContext())})
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req types.ExchangeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	res, err := s.governor.Exchange(r.Context(), service.ExchangeRequest{Text: req.Text, Model: req.Model})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAuthorizationAborted):
			respond(w, r, http.StatusConflict, exchangeToView(res))
		case errors.Is(err, service.ErrGenerationFailed):
			body := exchangeToView(res)
			body.Error = err.Error()
			respond(w, r, http.StatusBadGateway, body)
		default:
			s.writeServiceError(w, "exchange", err)
		}
		return
	}
	respond(w, r, http.StatusCreated, exchangeToView(res))
}

// ── Ledger ───────────────────────────────────────────────────────────────────

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	since, err := queryInt(r, "since", 0)
	if err != nil || since < 0 {
		writeError(w, http.StatusBadRequest, "bad_cursor", "since must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
		return
	}
	limit = min(limit, maxPageSize)

	page := types.LedgerPage{
		RunID:  s.ledger.RunID(),
		Since:  since,
		Next:   since,
		Tip:    s.ledger.Tip(),
		Events: []types.AuditEvent{},
	}
	for ev := range s.ledger.EntriesSince(since) {
		page.Events = append(page.Events, eventToView(ev))
		page.Next = ev.Seq
		if int64(len(page.Events)) >= limit {
			break
		}
	}
	respond(w, r, http.StatusOK, page)
}

func (s *Server) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	// Verify also checks the live tip against the last event.
	err := s.ledger.Verify()
	report := verifyReport(s.ledger.RunID(), s.ledger.Tip(), s.ledger.Snapshot(), err)
	if err != nil {
		s.logger.Printf("ledger integrity violation: %v", err)
	}
	respond(w, r, http.StatusOK, report)
}

// verifyReport describes the outcome of Ledger.Verify. Broken lists every
// position whose linkage fails recomputation, or the reported position when
// only the tip disagrees.
func verifyReport(runID, tip string, events []ledger.AuditEvent, verr error) types.VerifyReport {
	report := types.VerifyReport{
		OK:     verr == nil,
		RunID:  runID,
		Length: len(events),
		Tip:    tip,
	}
	if verr == nil {
		return report
	}
	report.Error = verr.Error()

	records := make([]chain.Record, len(events))
	for i, ev := range events {
		records[i] = ev.ChainRecord()
	}
	report.Broken = chain.Broken(records)
	var ie *chain.IntegrityError
	if len(report.Broken) == 0 && errors.As(verr, &ie) {
		report.Broken = []int{ie.Index}
	}
	return report
}

func (s *Server) handleVerifyArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "archive_disabled", "no evidence archive is configured")
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runID = s.ledger.RunID()
	}

	n, err := store.VerifyRun(r.Context(), s.archive, runID)
	report := types.VerifyReport{OK: err == nil, RunID: runID, Length: n}
	if err != nil {
		var ie *chain.IntegrityError
		if !errors.As(err, &ie) {
			s.logger.Printf("archive verify error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		s.logger.Printf("archive integrity violation run=%s: %v", runID, err)
		report.Error = err.Error()
		report.Broken = []int{ie.Index}
	}
	respond(w, r, http.StatusOK, report)
}

// ── Authority ────────────────────────────────────────────────────────────────

func (s *Server) handleAuthority(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, authorityToView(s.gate.Status(), s.governor.GhostCount(), ""))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	notice := s.governor.Connect()
	respond(w, r, http.StatusOK, authorityToView(s.gate.Status(), s.governor.GhostCount(), notice))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.governor.Disconnect()
	respond(w, r, http.StatusOK, authorityToView(s.gate.Status(), s.governor.GhostCount(), ""))
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "empty_text", err.Error())
	case errors.Is(err, service.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "invalid_role", err.Error())
	case errors.Is(err, generation.ErrUnknownModel):
		writeError(w, http.StatusBadRequest, "unknown_model", err.Error())
	case errors.Is(err, service.ErrUnknownMessage):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		s.logger.Printf("%s error: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
