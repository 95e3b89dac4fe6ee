// cmd/server/main.go
package main

import (
	"log"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/skullparty/skull/internal/auth"
	"github.com/skullparty/skull/internal/cache"
	"github.com/skullparty/skull/internal/config"
	"github.com/skullparty/skull/internal/database"
	"github.com/skullparty/skull/internal/handlers"
	"github.com/skullparty/skull/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	if cfg.JWTPrivateKeyPath != "" && cfg.JWTPublicKeyPath != "" {
		if err := auth.InitFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.TokenExpire); err != nil {
			log.Fatalf("auth keys: %v", err)
		}
	} else {
		auth.Init(cfg.TokenExpire)
	}

	// The Redis journal and Postgres history are optional; games run
	// fully in memory without them.
	if cfg.RedisAddr != "" {
		if err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB); err != nil {
			logger.Warnf("redis unavailable, action journal disabled: %v", err)
		}
	}
	if cfg.DatabaseURL != "" {
		if err := database.ConnectDB(cfg.DatabaseURL); err != nil {
			logger.Warnf("postgres unavailable, game history disabled: %v", err)
		}
	}

	rs := handlers.NewRoomServer()

	mux := http.NewServeMux()
	mux.Handle("/room/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(rs),
	)))
	mux.Handle("/room/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, rs),
	)))

	logger.Infof("Running on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
