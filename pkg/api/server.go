// Package api hosts the two-route HTTP shell: GET / for health, POST / for
// webhook delivery. Adapted from the teacher's pkg/api/server.go (which
// wires mux + rs/cors around a much larger REST+websocket surface); this
// module narrows that surface to the two routes spec.md §6 names and drops
// the market/orderbook/account/websocket endpoints that have no equivalent
// in a webhook-driven liquidation engine.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/liqhook/pkg/util"
	"github.com/uhyunpark/liqhook/pkg/webhook"
)

const maxBodyBytes = 5 << 20 // 5 MiB

// Server hosts the health and webhook HTTP routes.
type Server struct {
	router  *mux.Router
	handler *webhook.Handler
	log     *zap.Logger
	name    string
}

// NewServer constructs the HTTP shell.
func NewServer(handler *webhook.Handler, log *zap.Logger, serviceName string) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		handler: handler,
		log:     log,
		name:    serviceName,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleRoot)
}

// Handler returns the CORS-wrapped root handler, ready to pass to
// http.Server.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", webhook.SignatureHeader},
	})
	return c.Handler(s.router)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleHealth(w, r)
	case http.MethodPost:
		s.handleWebhook(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	TS      string `json:"ts"`
	TraceID string `json:"traceId"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Service: s.name,
		TS:      time.Now().UTC().Format(time.RFC3339),
		TraceID: util.NewTraceID(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "body_read_failed"})
		return
	}

	sig := r.Header.Get(webhook.SignatureHeader)
	resp, authOK := s.handler.Process(r.Context(), body, sig)
	if !authOK {
		if s.log != nil {
			s.log.Warn("webhook_auth_failed", zap.String("trace_id", resp.TraceID))
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "signature_mismatch", "traceId": resp.TraceID})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Shutdown gracefully stops an *http.Server built around this Server's
// Handler, honoring ctx's deadline.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
