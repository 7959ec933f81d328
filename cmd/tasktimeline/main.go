package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"tasktimeline/internal/bot"
	"tasktimeline/internal/config"
	"tasktimeline/internal/images"
	"tasktimeline/internal/logger"
	"tasktimeline/internal/repository"
	"tasktimeline/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := logger.Init(cfg.LogDevelopment); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Logger.Fatal("db", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	taskRepo := repository.NewTaskRepository(db)
	onboardingRepo := repository.NewOnboardingRepository(db)
	imageSvc := images.NewService(afero.NewOsFs(), cfg.DataDir)

	store := service.NewTaskStore(taskRepo, imageSvc)
	store.LoadTasks(ctx)

	onboarding := service.NewOnboardingService(onboardingRepo)
	onboarding.Load(ctx)

	telegramBot, err := bot.New(cfg.TelegramToken, cfg.OwnerChatID, store, onboarding, imageSvc)
	if err != nil {
		logger.Logger.Fatal("bot", zap.Error(err))
	}

	logger.Info("Task timeline bot started", zap.String("db", cfg.DatabaseURL), zap.String("images", imageSvc.Dir()))
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bot stopped with error", err)
	}
	logger.Info("Shutdown complete")
}
