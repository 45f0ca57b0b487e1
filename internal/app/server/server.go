package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/iklevente/crewdo-backend-sub001/internal/app/server/handlers"
	"github.com/iklevente/crewdo-backend-sub001/internal/config"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/services"
	"github.com/iklevente/crewdo-backend-sub001/pkg/middleware"
)

type Server struct {
	log       *slog.Logger
	mux       *http.ServeMux
	addr      string
	app       string
	wsHandler *handlers.WSHandler
	tokenSvc  *services.TokenService
}

func NewServer(
	log *slog.Logger,
	cfg config.Config,
	manager *services.ManagerService,
	tokenSvc *services.TokenService,
) *Server {
	s := &Server{
		log:       log,
		mux:       http.NewServeMux(),
		addr:      cfg.Service.Addr,
		app:       cfg.Service.Name,
		wsHandler: handlers.NewWSHandler(manager, *cfg.Hub),
		tokenSvc:  tokenSvc,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)
	logging := middleware.RequestLogger(s.log)
	tracing := middleware.TracerMiddleware(s.app)

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	// The token must verify before the upgrade; unauthenticated
	// connections are rejected with no event traffic.
	s.mux.Handle("/ws", tracing(logging(auth(http.HandlerFunc(s.wsHandler.Handler)))))
}

func (s *Server) Start() error {
	server := &http.Server{
		Addr:        s.addr,
		Handler:     s.mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would sever long-lived WebSocket sessions.
	}
	s.log.Info("server starting", "addr", s.addr)
	return server.ListenAndServe()
}
