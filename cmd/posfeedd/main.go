package main

import (
	"log"
	"net/http"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"posfeed/config"
	"posfeed/ingest"
	"posfeed/models"
	"posfeed/observability/logging"
	"posfeed/server"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.Setup("posfeedd", cfg.Env, logging.ParseLevel(cfg.LogLevel))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	svc := ingest.NewService(db, logger)
	svc.Resolver.Creator = cfg.Creator

	srv := server.New(server.Config{
		Ingestor:  svc,
		Log:       logger,
		InboxDir:  cfg.InboxDir,
		MaxUpload: int64(cfg.MaxUploadMB) << 20,
	})

	addr := ":" + cfg.Port
	logger.Info("starting posfeedd", "addr", addr, "inbox", cfg.InboxDir)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
