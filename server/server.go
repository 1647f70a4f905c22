// Package server serves the playground page and its WebSocket and JSON
// APIs.
//
// Endpoints:
//
//	GET  /                  editor with the example snippet
//	GET  /playground?code=  editor with a shared snippet
//	GET  /ws                one playground per connection
//	POST /api/load          start loading the server playground
//	GET  /api/status        server playground status
//	POST /api/evaluate      evaluate {"code": ...} (rate limited)
//	POST /api/share         {"code": ...} to {"url": ...}
//	GET  /health            liveness
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"html/template"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/caffeineduck/anchorpad/internal/logging"
	"github.com/caffeineduck/anchorpad/interp"
	"github.com/caffeineduck/anchorpad/loader"
	"github.com/caffeineduck/anchorpad/playground"
	"github.com/caffeineduck/anchorpad/sharelink"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

//go:embed page.html
var pageHTML string

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

// Config describes what the server hosts.
type Config struct {
	// Engine names the interpreter shown on the page.
	Engine string
	// Loader produces the module. It is wrapped so every playground on the
	// server shares one load.
	Loader interp.Loader
	// Example is the initial editor text.
	Example string
	// Origin prefixes share links. Empty uses the request's host.
	Origin string

	RateLimit rate.Limit
	RateBurst int

	// Playground options applied to every playground the server creates.
	Playground []playground.Option
}

type Server struct {
	cfg    Config
	log    *zap.SugaredLogger
	shared *loader.Shared
	mux    *http.ServeMux

	ctx    context.Context
	cancel context.CancelFunc

	// api is the playground behind the JSON endpoints.
	api      *playground.Playground
	limiters *limiterSet

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// New builds a server. Nothing is loaded until a client asks.
func New(cfg Config) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 10
	}

	shared, ok := cfg.Loader.(*loader.Shared)
	if !ok {
		shared = loader.NewShared(cfg.Loader)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		log:      logging.ComponentLogger("server"),
		shared:   shared,
		mux:      http.NewServeMux(),
		ctx:      ctx,
		cancel:   cancel,
		limiters: newLimiterSet(cfg.RateLimit, cfg.RateBurst),
		clients:  make(map[string]*Client),
	}
	s.api = playground.New(shared, s.playgroundOptions()...)
	s.routes()
	return s
}

func (s *Server) playgroundOptions(extra ...playground.Option) []playground.Option {
	opts := append([]playground.Option(nil), s.cfg.Playground...)
	return append(opts, extra...)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handlePage)
	s.mux.HandleFunc("GET "+sharelink.Path, s.handlePage)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("POST /api/load", s.handleLoad)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/evaluate", s.handleEvaluate)
	s.mux.HandleFunc("POST /api/share", s.handleShare)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("listening", logging.FieldAddress, ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown.
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// Close disconnects every client and releases the shared module.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.closeClients()
	s.api.Close()
	return s.shared.Close(context.Background())
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

type pageData struct {
	Engine     string
	Code       string
	ShareError string
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	data := pageData{Engine: s.cfg.Engine, Code: s.cfg.Example}

	if r.URL.Query().Has(sharelink.Param) {
		code, err := sharelink.FromQuery(r.URL.Query())
		if err != nil {
			s.log.Debugw("bad share link", logging.FieldError, err.Error())
			data.ShareError = err.Error()
		} else {
			data.Code = code
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.log.Warnw("render page", logging.FieldError, err.Error())
	}
}

type statusResponse struct {
	Status playground.Status `json:"status"`
	Error  *string           `json:"error"`
}

func (s *Server) status() statusResponse {
	resp := statusResponse{Status: s.api.Status()}
	if err := s.api.LoadErr(); err != nil {
		msg := err.Error()
		resp.Error = &msg
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// handleLoad starts loading. With ?wait=true it answers once loading ends.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	err := s.api.Initiate()
	if err != nil && !errors.Is(err, playground.ErrInvalidTransition) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		s.api.Await(r.Context())
	}

	code := http.StatusAccepted
	if s.api.Status() == playground.StatusSuccess {
		code = http.StatusOK
	}
	writeJSON(w, code, s.status())
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !s.limiters.allow(clientHost(r)) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
		return
	}

	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outcome, err := s.api.Evaluate(r.Context(), req.Code)
	switch {
	case errors.Is(err, playground.ErrNotReady):
		writeJSON(w, http.StatusConflict, s.status())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type shareResponse struct {
	URL string `json:"url"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{URL: sharelink.Build(s.origin(r), req.Code)})
}

func (s *Server) origin(r *http.Request) string {
	if s.cfg.Origin != "" {
		return s.cfg.Origin
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) register(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.id] = c
	return true
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return errors.Wrap(err, "invalid json")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
