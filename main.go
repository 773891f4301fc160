package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cricketauction/internal/broadcast"
	"cricketauction/internal/config"
	"cricketauction/internal/database/db_client"
	"cricketauction/internal/http/http_server"
	"cricketauction/internal/redis/redis_client"
	"cricketauction/internal/registry"
	"cricketauction/internal/store"
	"cricketauction/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres db client
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	// 5. Repository + registry of live auction actors
	repo := store.New(pgDb, redisClient)
	pub := broadcast.NewRedis(redisClient)
	reg := registry.New(ctx, repo, registry.Deps{Store: repo, Pub: pub, Log: Log})
	defer reg.Shutdown()

	// 6. Background: bid stream tailer + 10 s round-state mirror
	store.RunBidLog(ctx, redisClient, pgDb)
	store.RunMirror(ctx, redisClient, pgDb)

	// 7. WebSockets hub + Redis fan-out
	hub := ws.NewHub()

	// 8. Initialize the WS server
	wsSrv := ws.NewWsServer(hub, redisClient, reg, repo, cfg.AdminKey)

	// 9. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg, wsSrv, repo, reg)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
