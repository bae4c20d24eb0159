package app

import (
	"context"
	"log"
	"time"

	"Gin_postgres_redis_lending_engine/config"
	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/events"
	"Gin_postgres_redis_lending_engine/lending"
	"Gin_postgres_redis_lending_engine/policy"
	"Gin_postgres_redis_lending_engine/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// handler shorthands
type Ctx = gin.Context
type H = gin.H

// App aggregates the process-wide dependencies.
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Log    *zap.Logger
	Config *config.Config

	Repo     *db.Repo
	Policies *policy.Provider
	Events   events.Publisher
	Engine   *lending.Engine

	appSess *session.AppSessionStore
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

func MustNew(cfg *config.Config) *App {
	logger, err := NewLogger(cfg.Logger, cfg.Server.IsDevelopment())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	// --- Postgres ---
	dbConn, err := db.ConnectDB(cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("Could not connect to database", zap.Error(err))
	}
	repo := db.NewRepo(dbConn, db.WithMaxAttempts(cfg.Postgres.RetryAttempts))

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// --- Kafka ---
	var pub events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("Publishing lending events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		logger.Warn("KAFKA_BROKERS not set, lending events are dropped")
	}

	policies := policy.NewProvider(repo, rdb, cfg.Policy.CacheTTL, cfg.Policy.Defaults, logger)
	engine := lending.NewEngine(repo, policies, pub, logger)

	// --- Gin ---
	if !cfg.Server.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(RequestLogger(logger), gin.Recovery())
	useCORS(r, cfg.Server.WebOrigins)

	return &App{
		Router:   r,
		DB:       dbConn,
		RDB:      rdb,
		Log:      logger,
		Config:   cfg,
		Repo:     repo,
		Policies: policies,
		Events:   pub,
		Engine:   engine,
		appSess:  session.NewAppSessionStore(rdb, cfg.Session.TTL),
	}
}

func (a *App) Close() {
	if err := a.Events.Close(); err != nil {
		a.Log.Warn("close event publisher", zap.Error(err))
	}
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.Log.Sync()
}
