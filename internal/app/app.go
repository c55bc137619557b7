package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"roofcrm/internal/config"
	"roofcrm/internal/events"
	"roofcrm/internal/handlers"
	"roofcrm/internal/repositories"
	"roofcrm/internal/routes"
	"roofcrm/internal/services"
)

// App is the assembled status service: HTTP API plus, when Redis is
// configured, the event stream consumer and its reclaim sweep.
type App struct {
	cfg       *config.Config
	Router    *gin.Engine
	db        *sql.DB
	rdb       *redis.Client
	consumer  *events.StreamConsumer
	scheduler *events.Scheduler
	notifier  *services.AsyncObserver
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	// === Storage ===
	var (
		store    repositories.StatusStore
		leadRepo repositories.LeadRepository
		userRepo repositories.UserRepository
	)
	switch cfg.Database.Driver {
	case "memory":
		mem := repositories.NewMemoryStore()
		store, leadRepo, userRepo = mem, mem, mem.Users()
		log.Printf("[app] using in-memory store")
	default:
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.db = db
		store = repositories.NewStatusHistoryRepository(db)
		leadRepo = repositories.NewLeadRepository(db)
		userRepo = repositories.NewUserRepository(db)
		log.Printf("[app] PostgreSQL connected")
	}

	// === Redis ===
	if cfg.Redis.URL != "" {
		rdb, err := newRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rdb = rdb
		log.Printf("[app] Redis connected")
	}

	// === Observers ===
	var observers []services.StatusObserver
	if a.rdb != nil {
		observers = append(observers, events.NewPublisher(a.rdb, cfg.Redis.StatusChannel))
	}
	if cfg.Notifications.Enabled {
		var email services.EmailService
		if cfg.Email.SMTPHost != "" {
			email = services.NewEmailService(
				cfg.Email.SMTPHost,
				cfg.Email.SMTPPort,
				cfg.Email.SMTPUser,
				cfg.Email.SMTPPassword,
				cfg.Email.FromEmail,
			)
		}
		tg, err := services.NewTelegramService(cfg.Telegram.BotToken)
		if err != nil {
			log.Printf("[app] telegram disabled: %v", err)
		}
		a.notifier = services.NewAsyncObserver(services.NewStatusNotifier(leadRepo, userRepo, email, tg), 256, 30*time.Second)
		observers = append(observers, a.notifier)
	}

	// === Services ===
	transitions := services.NewStatusTransitionService(store)
	leadService := services.NewLeadService(leadRepo, transitions, observers...)
	eventService := services.NewLeadEventService(transitions, observers...)
	historyService := services.NewHistoryService(store)

	if a.rdb != nil {
		a.consumer = events.NewStreamConsumer(a.rdb, eventService, events.ConsumerOptions{
			Stream:   cfg.Redis.Stream,
			Group:    cfg.Redis.Group,
			Consumer: cfg.Redis.Consumer,
			MinIdle:  cfg.Redis.MinIdle,
		})
		if err := a.consumer.EnsureGroup(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.scheduler = events.NewScheduler(a.consumer, cfg.Redis.ReclaimSpec)
	}

	// === Handlers ===
	leadHandler := handlers.NewLeadHandler(leadService)
	historyHandler := handlers.NewHistoryHandler(leadService, historyService)
	reportHandler := handlers.NewReportHandler(leadService, historyService)
	integrationsHandler := handlers.NewIntegrationsHandler(eventService)

	// === Gin ===
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	routes.SetupRoutes(
		router,
		routes.Options{JWTSecret: []byte(cfg.Auth.JWTSecret), WebhookSecret: cfg.Webhooks.Secret},
		leadHandler,
		historyHandler,
		reportHandler,
		integrationsHandler,
	)
	a.Router = router
	return a, nil
}

// Run serves HTTP and consumes events until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("[app] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	consumerDone := make(chan struct{})
	if a.consumer != nil {
		go func() {
			defer close(consumerDone)
			if err := a.consumer.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	} else {
		close(consumerDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Println("[app] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[app] shutdown error: %v", err)
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if runErr == nil {
		<-consumerDone
	}
	return runErr
}

func (a *App) Close() {
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			log.Printf("[app] redis close: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("[app] db close: %v", err)
		}
	}
}

func newRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
