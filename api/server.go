package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"cabinet/api/controllers"
	"cabinet/api/middlewares"
	"cabinet/api/notifyhub"
	"cabinet/listing"
	"cabinet/tool"
	"cabinet/treeop"
	"cabinet/types"
	"cabinet/upload"
)

// Server is the HTTP front of the upload coordinator and tree-op engine.
type Server struct {
	port   int
	cfg    types.AppConfig
	engine *gin.Engine
	server *http.Server
	mu     sync.RWMutex

	coordinator *upload.Coordinator
	treeEngine  *treeop.Engine
	cache       *listing.Cache
	hub         *notifyhub.Hub
	rootFor     func(owner string) string
}

func NewServer(cfg types.AppConfig, coordinator *upload.Coordinator, treeEngine *treeop.Engine, cache *listing.Cache, hub *notifyhub.Hub, rootFor func(owner string) string) *Server {
	return &Server{
		port:        cfg.Port,
		cfg:         cfg,
		coordinator: coordinator,
		treeEngine:  treeEngine,
		cache:       cache,
		hub:         hub,
		rootFor:     rootFor,
	}
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	sessionCtrl := controllers.NewSessionController(s.coordinator)
	chunkCtrl := controllers.NewChunkController(s.coordinator)
	filesCtrl := controllers.NewFilesController(s.treeEngine, s.cache, s.hub, s.rootFor)

	rateLimit := middlewares.MutationRateLimit(s.cfg.MutationRatePerSec, s.cfg.MutationBurst)

	v1 := engine.Group("/api/fs/v1")
	v1.Use(middlewares.RequireOwner)
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", rateLimit, sessionCtrl.HandleCreateSession)
			sessions.GET("", sessionCtrl.HandleListSessions)
			sessions.GET("/:id", sessionCtrl.HandleGetSession)
			sessions.POST("/:id/files", rateLimit, sessionCtrl.HandleRegisterFiles)
			sessions.GET("/:id/files/:fileId/offset", chunkCtrl.HandleGetOffset)
			sessions.PUT("/:id/files/:fileId/chunk", chunkCtrl.HandlePutChunk)
			sessions.POST("/:id/files/:fileId/complete", rateLimit, chunkCtrl.HandleCompleteFile)
			sessions.DELETE("/:id/files/:fileId", rateLimit, sessionCtrl.HandleRemoveFile)
			sessions.POST("/:id/complete", rateLimit, sessionCtrl.HandleCompleteSession)
			sessions.POST("/:id/pause", rateLimit, sessionCtrl.HandlePause)
			sessions.POST("/:id/resume", rateLimit, sessionCtrl.HandleResume)
			sessions.DELETE("/:id", rateLimit, sessionCtrl.HandleAbortSession)
		}

		files := v1.Group("/files")
		{
			files.GET("/list", filesCtrl.HandleList)
			files.POST("/mkdir", rateLimit, filesCtrl.HandleMkdir)
			files.POST("/copy", rateLimit, filesCtrl.HandleCopy)
			files.POST("/move", rateLimit, filesCtrl.HandleMove)
			files.POST("/delete", rateLimit, filesCtrl.HandleDelete)
			files.POST("/zip", filesCtrl.HandleZip)
		}

		v1.GET("/events/ws", notifyhub.HandleEventsWS(s.hub))
	}

	return engine
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	s.engine = s.setupRoutes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	tool.DefaultLogger.Infof("API server listening on :%d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = s.setupRoutes()
	}
	return s.engine
}
