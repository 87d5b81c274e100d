// Package httpapi exposes the hub over HTTP: JSON endpoints for agents,
// conversations, tasks and workflows, a websocket event stream fed by the
// broadcaster, and Prometheus metrics. Request and response bodies are JSON;
// coded errors map onto stable status codes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tidewell/agenthub"
	"github.com/tidewell/agenthub/config"
	"github.com/tidewell/agenthub/logging"
)

// Options configure the HTTP server.
type Options struct {
	// Config covers the listener, timeouts and CORS origins.
	Config config.ServerConfig
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Server serves the hub's HTTP surface.
type Server struct {
	hub      *agenthub.Hub
	cfg      config.ServerConfig
	logger   logging.Logger
	router   *gin.Engine
	metrics  *metrics
	upgrader websocket.Upgrader
}

// New builds the server and registers all routes.
func New(hub *agenthub.Hub, optFns ...func(o *Options)) *Server {
	opts := Options{
		Config: config.Default().Server,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: opts.Config.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	s := &Server{
		hub:     hub,
		cfg:     opts.Config,
		logger:  opts.Logger,
		router:  router,
		metrics: newMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	router.Use(s.metrics.middleware())
	s.routes()
	return s
}

// Router exposes the underlying gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) routes() {
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/metrics", s.metrics.handler())
	s.router.GET("/events", s.handleEvents)

	s.router.GET("/agents", s.handleListAgents)
	s.router.POST("/agents", s.handleRegisterAgent)
	s.router.DELETE("/agents/:id", s.handleRemoveAgent)
	s.router.POST("/agents/:id/heartbeat", s.handleHeartbeat)
	s.router.POST("/agents/:id/message", s.handleDirectMessage)

	s.router.POST("/conversation", s.handleInitConversation)
	s.router.POST("/process", s.handleProcessMessage)
	s.router.POST("/conversations/multi-agent", s.handleMultiAgent)
	s.router.GET("/conversations/:id", s.handleGetConversation)
	s.router.POST("/conversations/:id/close", s.handleCloseConversation)

	s.router.POST("/tasks", s.handleCreateTask)
	s.router.GET("/tasks/:id", s.handleGetTask)
	s.router.POST("/tasks/:id/execute", s.handleExecuteTask)
	s.router.POST("/tasks/:id/cancel", s.handleCancelTask)

	s.router.POST("/workflows", s.handleCreateWorkflow)
	s.router.GET("/workflows/:id", s.handleGetWorkflow)
	s.router.POST("/workflows/:id/execute", s.handleExecuteWorkflow)
	s.router.POST("/workflows/:id/cancel", s.handleCancelWorkflow)
	s.router.POST("/workflows/setup", s.handleWorkflowSetup)
}

// Start serves until the context is cancelled, then shuts down gracefully
// within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
