// Lệnh ui chạy HTTP server phục vụ trạng thái thu thập dạng JSON.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/ui"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
)

func main() {
	port := flag.Int("port", 0, "listen port, default from config")
	flag.Parse()

	ctx := context.Background()
	logger, _ := log.NewCslLogger()

	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		logger.Critical(ctx, "Failed to load configuration: %v", err)
		os.Exit(1)
	}
	sqlite, _ := db.NewSqlite(config, logger)

	listenPort := config.Ui.Port
	if *port > 0 {
		listenPort = *port
	}
	if listenPort <= 0 {
		listenPort = 8080
	}

	server, err := ui.NewServer(logger, config, sqlite, listenPort)
	if err != nil {
		logger.Critical(ctx, "Failed to create UI server: %v", err)
		os.Exit(1)
	}
	if err := server.Start(); err != nil {
		logger.Critical(ctx, "UI server failed: %v", err)
		os.Exit(1)
	}
}
