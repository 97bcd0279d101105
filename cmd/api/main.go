package main

import (
	"context"
	"log"
	"time"

	"github.com/hqkang/chatvault/internal/chat"
	"github.com/hqkang/chatvault/internal/config"
	"github.com/hqkang/chatvault/internal/db"
	"github.com/hqkang/chatvault/internal/httpapi"
	"github.com/hqkang/chatvault/internal/store/rabbitmq"
	"github.com/hqkang/chatvault/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDriver, cfg.DBDSN)

	// Redis and RabbitMQ are optional at startup: without Redis every read
	// goes to the database, without RabbitMQ only the synchronous export
	// endpoint works.
	var cache chat.Cache
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		cfg.SessionsCacheTTL, cfg.MessagesCacheTTL)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rds.Ping(pingCtx); err != nil {
		log.Printf("redis unavailable, caching disabled: %v", err)
	} else {
		cache = rds
	}
	cancel()

	var rabbit *rabbitmq.Publisher
	if pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		log.Printf("rabbit unavailable, async export disabled: %v", err)
	} else {
		rabbit = pub
		defer rabbit.Close()
	}

	r := httpapi.NewRouter(gdb, cfg, cache, rabbit)

	log.Printf("api listening on %s driver=%s", cfg.HTTPAddr, cfg.DBDriver)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("http serve: %v", err)
	}
}
