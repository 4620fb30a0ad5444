package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whiteboard/internal/auth"
	"whiteboard/internal/config"
	"whiteboard/internal/database"
	"whiteboard/internal/handler"
	"whiteboard/internal/jobs"
	"whiteboard/internal/middleware"
	"whiteboard/internal/realtime"
	"whiteboard/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

type Server struct {
	Engine    *gin.Engine
	DB        *gorm.DB
	Config    *config.Config
	Hub       *realtime.Hub
	Scheduler *jobs.Scheduler

	redis  *redis.Client
	relay  *realtime.RedisRelay
	ctx    context.Context
	cancel context.CancelFunc
}

func Init(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("❌ failed to connect to DB: %w", err)
	}
	log.Println("✅ Connected to database")

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("❌ failed to migrate DB: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		DB:     db,
		Config: cfg,
		Hub:    realtime.NewHub(),
		ctx:    ctx,
		cancel: cancel,
	}

	// Redis нужен только при нескольких инстансах
	if cfg.RedisAddr != "" {
		client, err := realtime.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("❌ failed to connect to Redis: %w", err)
		}
		s.redis = client
		s.relay = realtime.NewRedisRelay(client, ulid.Make().String())
		s.Hub.SetRelay(s.relay)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	boardRepo := repository.NewBoardRepository(db)
	boardShareRepo := repository.NewBoardShareRepository(db)
	loginLinkRepo := repository.NewLoginLinkRepository(db)

	s.Scheduler = jobs.NewScheduler(loginLinkRepo)

	// Initialize handlers
	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTExpiry)
	authHandler := handler.NewAuthHandler(userRepo, loginLinkRepo, tokens, cfg.LoginLinkTTL, cfg.PublicURL)
	boardHandler := handler.NewBoardHandler(boardRepo, boardShareRepo, cfg.MaxElements)
	boardShareHandler := handler.NewBoardShareHandler(boardRepo, userRepo, boardShareRepo)
	realtimeHandler := handler.NewRealtimeHandler(ctx, s.Hub, boardRepo, boardShareRepo)

	s.Engine = NewRouter(cfg.JWTSecret, authHandler, boardHandler, boardShareHandler, realtimeHandler)
	return s, nil
}

// NewRouter собирает маршруты API
func NewRouter(
	jwtSecret string,
	authHandler *handler.AuthHandler,
	boardHandler *handler.BoardHandler,
	boardShareHandler *handler.BoardShareHandler,
	realtimeHandler *handler.RealtimeHandler,
) *gin.Engine {
	r := gin.Default()

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public routes
	r.POST("/auth/login-link", authHandler.RequestLoginLink)
	r.POST("/auth/verify", authHandler.Verify)

	// Публичные доски доступны без входа
	optional := r.Group("/")
	optional.Use(middleware.OptionalJWTAuth(jwtSecret))
	{
		optional.GET("/boards/:slug", boardHandler.GetBySlug)
		optional.GET("/realtime/:board_id", realtimeHandler.Connect)
	}

	// Protected routes - require authentication
	authorized := r.Group("/")
	authorized.Use(middleware.JWTAuthMiddleware(jwtSecret))
	{
		authorized.GET("/me", authHandler.Me)
		authorized.PUT("/me", authHandler.UpdateMe)
		authorized.POST("/auth/sign-out", authHandler.SignOut)

		// Board routes
		authorized.POST("/boards", boardHandler.Create)
		authorized.GET("/boards", boardHandler.GetAll)
		authorized.PUT("/boards/:slug", boardHandler.Update)
		authorized.DELETE("/boards/:slug", boardHandler.Delete)
		authorized.PUT("/boards/:slug/scene", boardHandler.SaveScene)

		// Board sharing routes
		authorized.POST("/boards/:slug/shares", boardShareHandler.ShareBoard)
		authorized.GET("/boards/:slug/shares", boardShareHandler.GetBoardShares)
		authorized.DELETE("/boards/:slug/shares/:user_id", boardShareHandler.RemoveShare)
	}
	return r
}

func (s *Server) Run() {
	srv := &http.Server{
		Addr:    ":" + s.Config.ServerPort,
		Handler: s.Engine,
	}

	if err := s.Scheduler.Start(s.Config.PurgeSchedule); err != nil {
		log.Fatalf("❌ Failed to start jobs: %s\n", err)
	}

	if s.relay != nil {
		go func() {
			if err := s.relay.Run(s.ctx, s.Hub); err != nil {
				log.Printf("❌ Redis relay stopped: %v\n", err)
			}
		}()
	}

	go func() {
		log.Printf("🚀 Server running on port %s\n", s.Config.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Failed to listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	s.cancel()
	s.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %s", err)
	}

	if s.redis != nil {
		_ = s.redis.Close()
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Println("✅ Server exited properly")
}
