// Package httpapi serves and consumes selection service lookups over HTTP.
//
//	POST /v1/lookup   {"input_text": "ap", "sequence": 3}
//	GET  /v1/lookup?q=ap
//
// Both answer {"results": {"items": [...]}}.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/runger/singleselect/internal/lookup"
)

// CorrelationHeader carries the lookup correlation ID in both directions.
const CorrelationHeader = "X-Correlation-ID"

const maxBodyBytes = 1 << 20

type lookupBody struct {
	InputText     string `json:"input_text"`
	Sequence      uint64 `json:"sequence,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Server exposes a lookup.Service over HTTP.
type Server struct {
	svc    lookup.Service
	logger *slog.Logger
}

// NewServer creates a Server answering lookups with svc.
func NewServer(svc lookup.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/lookup", s.postLookup)
		r.Get("/lookup", s.getLookup)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) postLookup(w http.ResponseWriter, r *http.Request) {
	var body lookupBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.CorrelationID == "" {
		body.CorrelationID = r.Header.Get(CorrelationHeader)
	}
	s.serve(w, r, body)
}

func (s *Server) getLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body := lookupBody{
		InputText:     q.Get("q"),
		CorrelationID: r.Header.Get(CorrelationHeader),
	}
	if raw := q.Get("sequence"); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid sequence")
			return
		}
		body.Sequence = seq
	}
	s.serve(w, r, body)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, body lookupBody) {
	if body.CorrelationID == "" {
		body.CorrelationID = uuid.NewString()
	}
	w.Header().Set(CorrelationHeader, body.CorrelationID)

	env, err := s.svc.Lookup(r.Context(), lookup.Request{
		InputText:     body.InputText,
		Sequence:      body.Sequence,
		CorrelationID: body.CorrelationID,
		Trigger:       "http",
	})
	if err != nil {
		s.logger.Error("lookup failed",
			"correlation_id", body.CorrelationID,
			"error", err,
		)
		writeError(w, http.StatusBadGateway, "lookup failed")
		return
	}
	writeJSONStatus(w, env.Map(), http.StatusOK)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, map[string]string{"error": msg}, status)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}
