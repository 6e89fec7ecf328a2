package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eachlabs/chorus/internal/provider"
	"github.com/eachlabs/chorus/internal/sse"
)

// maxRequestBody bounds request bodies; inline images make them large.
const maxRequestBody = 32 << 20

// Server exposes a Relay and a single-shot provider over HTTP.
type Server struct {
	relay  *Relay
	chat   provider.Provider
	logger *slog.Logger
}

// NewServer creates the HTTP surface. chat serves /api/chat and may be nil,
// in which case that route answers 501.
func NewServer(r *Relay, chat provider.Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{relay: r, chat: chat, logger: logger}
}

// Router returns the routed handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Post("/chat/stream", s.handleStream)
		api.Post("/chat", s.handleChat)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	events, err := s.relay.Stream(r.Context(), req)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	sse.SetHeaders(w)
	w.WriteHeader(http.StatusOK)

	done := false
	for ev := range events {
		payload, err := ev.Payload()
		if err != nil {
			s.logger.Error("encode event", "error", err)
			continue
		}
		if err := sse.Write(w, payload); err != nil {
			// Client went away; the request context cancels the upstream.
			return
		}
		done = ev.Kind == KindDone
	}
	if !done && r.Context().Err() == nil {
		_ = sse.WriteDone(w)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeJSON(w, http.StatusNotImplemented, errorPayload{Error: "single-shot chat is not configured", Code: http.StatusNotImplemented})
		return
	}
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	if err := s.relay.Validate(req); err != nil {
		writeRequestError(w, err)
		return
	}

	resp, err := s.chat.Chat(r.Context(), &provider.ChatRequest{
		Model:        req.Model,
		Messages:     ProviderMessages(req),
		ImageDataURL: req.ImageDataURL,
		Credential:   req.Credential,
		Referer:      firstNonEmpty(req.Referer, s.relay.cfg.Referer),
		Title:        firstNonEmpty(req.Title, s.relay.cfg.Title),
	})
	if err != nil {
		code := provider.StatusCode(err)
		if code == 0 {
			code = http.StatusBadGateway
		}
		s.logger.Warn("single-shot chat failed", "model", req.Model, "error", err)
		writeJSON(w, code, errorPayload{Error: DescribeError(code, err.Error(), req.Model, keyKindOf(req.Credential)), Code: code})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: "invalid JSON body: " + err.Error(), Code: http.StatusBadRequest})
		return Request{}, false
	}
	return req, true
}

func writeRequestError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, verr.Code(), errorPayload{Error: verr.Error(), Code: verr.Code()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorPayload{Error: err.Error(), Code: http.StatusInternalServerError})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
