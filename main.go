package main

import (
	"log"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/joho/godotenv"

	"github.com/jaskirat05/graviton-bridge/biz/handler"
	"github.com/jaskirat05/graviton-bridge/biz/middleware"
	"github.com/jaskirat05/graviton-bridge/biz/router"
	"github.com/jaskirat05/graviton-bridge/pkg/bridgecfg"
	"github.com/jaskirat05/graviton-bridge/pkg/config"
	"github.com/jaskirat05/graviton-bridge/pkg/controlauth"
	"github.com/jaskirat05/graviton-bridge/pkg/ledger"
	"github.com/jaskirat05/graviton-bridge/pkg/lock"
	"github.com/jaskirat05/graviton-bridge/pkg/redis"
	"github.com/jaskirat05/graviton-bridge/pkg/templates"
	"github.com/jaskirat05/graviton-bridge/pkg/validator"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ldg, err := ledger.Open(cfg.Ledger)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer func() { _ = ldg.Close() }()

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		middleware.InitWriteLock(lock.New(
			redisClient,
			"graviton_bridge:config_write_lock",
			30*time.Second,
			5*time.Second,
		))
		log.Printf("Redis write lock enabled at %s", cfg.Redis.Address)
	}

	h := handler.NewBridgeHandler(
		bridgecfg.NewStore(cfg.Bridge.ConfigPath),
		ldg,
		templates.NewStore(cfg.Bridge.TemplatesDir),
		controlauth.FromEnv(),
		validator.NewUpload(cfg.Upload),
		cfg.Bridge.WorkerIDPath,
	)

	srv := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithMaxRequestBodySize(int(cfg.Upload.MaxSize)),
	)
	srv.Use(middleware.Recovery())
	srv.Use(middleware.Logging())
	srv.Use(middleware.CORS(&cfg.CORS))

	router.Register(srv, h)

	log.Printf("graviton-bridge listening on %s", cfg.Server.Address)
	srv.Spin()
}
