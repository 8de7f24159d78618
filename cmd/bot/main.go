package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/rf-history/internal/ai"
	"github.com/camuig/rf-history/internal/analyzer"
	"github.com/camuig/rf-history/internal/config"
	"github.com/camuig/rf-history/internal/logger"
	"github.com/camuig/rf-history/internal/metrics"
	"github.com/camuig/rf-history/internal/processor"
	"github.com/camuig/rf-history/internal/report"
	"github.com/camuig/rf-history/internal/scheduler"
	"github.com/camuig/rf-history/internal/storage"
	"github.com/camuig/rf-history/internal/telegram"
	"github.com/camuig/rf-history/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithFile(cfg.Logging.Level, logger.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	log.Info("starting rf-history", "db", cfg.Storage.DBPath, "ftp_dir", cfg.Statements.FTPDir)

	db, err := storage.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	repo := storage.NewRepository(db)
	m := metrics.New()

	engine, err := analyzer.NewEngine(cfg.GridParams())
	if err != nil {
		log.Fatalf("grid params: %v", err)
	}
	classifier, err := analyzer.NewPatternClassifier(cfg.Statements.DepositPattern)
	if err != nil {
		log.Fatalf("deposit pattern: %v", err)
	}
	reports := report.NewService(repo, engine, classifier, m, log)

	proc, err := processor.NewProcessor(repo, m, cfg, log)
	if err != nil {
		log.Fatalf("processor init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	notifier := telegram.NewNotifier(nil, log)
	if cfg.Telegram.Enabled {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			log.Fatalf("telegram bot init failed: %v", err)
		}
		api.Debug = cfg.Telegram.Debug
		log.Info("telegram bot connected", "username", api.Self.UserName)

		var advisor telegram.Advisor
		if cfg.AI.Enabled {
			advisor = ai.NewAdvisor(cfg, log)
			log.Info("ai commentary enabled", "model", cfg.AI.Model)
		}

		bot := telegram.NewBot(api, repo, reports, proc, advisor, m, cfg, log)
		notifier = bot.Notifier()

		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.Run(ctx)
		}()
	}

	scanner := scheduler.NewScanner(proc, repo, notifier, m, cfg, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner.Run(ctx)
	}()

	var webServer *web.Server
	if cfg.Web.Enabled {
		webServer = web.NewServer(repo, reports, m, cfg, log)
		go func() {
			if err := webServer.Start(); err != nil {
				log.Error("web server error", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if webServer != nil {
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			log.Error("web server shutdown error", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("workers did not stop in time")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info("rf-history stopped")
}
