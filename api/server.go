// Package api exposes the knowbot REST API.
//
// Endpoints:
//
//	GET    /health                                liveness probe
//	GET    /ready                                 readiness probe (DB ping)
//	POST   /api/chat                              run one chat turn
//	GET    /api/search                            semantic search over the current KB
//	GET    /api/kbs                               list knowledge bases
//	POST   /api/kbs                               create a knowledge base
//	GET    /api/kbs/current                       currently selected KB
//	POST   /api/kbs/select                        switch current KB by ID or password
//	PUT    /api/kbs/{kb_id}                       rename / password / analyze_clients
//	DELETE /api/kbs/{kb_id}                       delete KB (falls back to default)
//	GET    /api/kbs/{kb_id}/documents             paginated document listing
//	POST   /api/kbs/{kb_id}/documents             add document
//	GET    /api/kbs/{kb_id}/documents/{doc_id}    fetch document
//	PUT    /api/kbs/{kb_id}/documents/{doc_id}    update document
//	DELETE /api/kbs/{kb_id}/documents/{doc_id}    delete document
//	GET    /api/kbs/{kb_id}/settings              persona settings
//	PUT    /api/kbs/{kb_id}/settings              save persona settings
//	GET    /api/kbs/{kb_id}/sessions              list sessions of a KB
//	GET    /api/sessions/{session_id}             session metadata and transcript
//	POST   /api/sessions/{session_id}/read        clear unread flag
//	POST   /api/sessions/{session_id}/flag        set potential-client flag
//	POST   /api/sessions/{session_id}/clear       clear transcript
//	DELETE /api/sessions/{session_id}             delete session
//	GET    /api/status                            chatbot stop state
//	POST   /api/status/stop                       owner stop
//	POST   /api/status/start                      owner start (403 on admin stop)
//	POST   /api/admin/status/stop                 admin stop
//	POST   /api/admin/status/start                admin start
//	GET    /api/usage                             usage totals
//	GET    /api/usage/transactions                recent usage records
//	GET    /api/model                             current chat model
//	PUT    /api/model                             change chat model
//
// Accounts are identified by the X-Account header; requests without it fall
// into the "default" account. Ownership of KBs and sessions is enforced on
// every route that names one.
package api

import (
	"context"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/knowbot-ai/knowbot/internal/chat"
	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/session"
	"github.com/knowbot-ai/knowbot/internal/settings"
	"github.com/knowbot-ai/knowbot/internal/status"
	"github.com/knowbot-ai/knowbot/internal/usage"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8090"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to block Slowloris-style abuse.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Deps bundles everything the server needs.
type Deps struct {
	DB           *gorm.DB
	Registry     *knowledge.Registry
	Documents    *knowledge.Store
	Sessions     *session.Manager
	Settings     *settings.Store
	Status       *status.Switch
	Usage        *usage.Ledger
	Models       *chat.ModelStore
	Orchestrator *chat.Orchestrator
	Searcher     Searcher
	Logger       log.Logger
}

// Server is the knowbot HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health    *HealthHandler
	chat      *ChatHandler
	kb        *KBHandler
	documents *DocumentHandler
	sessions  *SessionHandler
	settings  *SettingsHandler
	status    *StatusHandler
	usage     *UsageHandler
	model     *ModelHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    d.Logger,
		health:    NewHealthHandler(d.DB, d.Logger),
		chat:      NewChatHandler(d.Orchestrator, d.Registry, d.Searcher, d.Logger),
		kb:        NewKBHandler(d.Registry, d.Sessions, d.Logger),
		documents: NewDocumentHandler(d.Registry, d.Documents, d.Logger),
		sessions:  NewSessionHandler(d.Registry, d.Sessions, d.Logger),
		settings:  NewSettingsHandler(d.Registry, d.Settings, d.Logger),
		status:    NewStatusHandler(d.Status, d.Logger),
		usage:     NewUsageHandler(d.Usage, d.Logger),
		model:     NewModelHandler(d.Models, d.Logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.kb.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)
	s.sessions.RegisterRoutes(mux)
	s.settings.RegisterRoutes(mux)
	s.status.RegisterRoutes(mux)
	s.usage.RegisterRoutes(mux)
	s.model.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// accountFrom resolves the account of a request. Requests without the
// X-Account header belong to the "default" account.
func accountFrom(r *http.Request) string {
	if a := r.Header.Get("X-Account"); a != "" {
		return a
	}
	return "default"
}
