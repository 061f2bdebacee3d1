package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/wiresocks/wiresocks-ui/api"
	"github.com/wiresocks/wiresocks-ui/config"
	"github.com/wiresocks/wiresocks-ui/logger"
	"github.com/wiresocks/wiresocks-ui/service"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// Server is the HTTP control panel. All state changes go through the
// orchestrator; the server itself is stateless apart from sessions.
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	orchestrator *service.Orchestrator
	presenter    *service.Presenter
	settings     *service.SettingService

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(orchestrator *service.Orchestrator, presenter *service.Presenter, settings *service.SettingService) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		orchestrator: orchestrator,
		presenter:    presenter,
		settings:     settings,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (s *Server) initRouter() (*gin.Engine, error) {
	if config.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.DefaultWriter = io.Discard
		gin.DefaultErrorWriter = io.Discard
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	secret, err := s.settings.GetSecret()
	if err != nil {
		return nil, err
	}

	store := cookie.NewStore(secret)
	engine.Use(sessions.Sessions("wsui", store))
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	engine.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	group := engine.Group("/app")
	api.NewAPIHandler(group.Group("/api"), s.orchestrator, s.presenter)

	return engine, nil
}

func (s *Server) Start() error {
	engine, err := s.initRouter()
	if err != nil {
		return err
	}

	listenAddr, err := s.settings.GetWebListen()
	if err != nil {
		return err
	}
	port, err := s.settings.GetWebPort()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", listenAddr, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener
	logger.Info("web server running HTTP on ", listener.Addr())

	s.httpServer = &http.Server{
		Handler: engine,
	}

	go func() {
		err := s.httpServer.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			logger.Error("web server error: ", err)
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	s.cancel()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
