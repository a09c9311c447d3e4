package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"task-reminder/internal/config"
	"task-reminder/internal/notify"
	"task-reminder/internal/repository"
	"task-reminder/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("db")
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	taskRepo := repository.NewTaskRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)

	var sender notify.Sender = notify.LogSender{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		telegram, err := notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logrus.WithError(err).Fatal("telegram sender")
		}
		sender = telegram
	}

	center, err := notify.NewLocalCenter(db, sender, cfg.NotificationsEnabled)
	if err != nil {
		logrus.WithError(err).Fatal("notification center")
	}

	reminderSvc := service.NewReminderService(center)
	generatorSvc := service.NewGeneratorService(taskRepo, reminderSvc)
	categorySvc := service.NewCategoryService(categoryRepo)
	taskSvc := service.NewTaskService(taskRepo, categorySvc, reminderSvc, generatorSvc)
	refreshSvc := service.NewRefreshService(taskRepo, center, reminderSvc)
	archiveSvc := service.NewArchiveService(taskRepo)

	reconcile := func(trigger string) {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		now := time.Now()

		added, err := refreshSvc.Refresh(jobCtx, now)
		switch {
		case errors.Is(err, notify.ErrCapacityExceeded):
			logrus.WithField("added", added).Warn("refresh hit notification capacity")
		case err != nil:
			logrus.WithError(err).WithField("trigger", trigger).Warn("refresh failed")
		}

		if _, err := archiveSvc.Sweep(jobCtx, now, cfg.ArchiveAfterDays); err != nil {
			logrus.WithError(err).WithField("trigger", trigger).Warn("archive sweep failed")
		}
	}

	scheduler := service.NewSchedulerService(time.Local)
	if _, err := scheduler.ScheduleInterval(cfg.DispatchInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		now := time.Now()

		deliveries, err := center.DispatchDue(jobCtx, now)
		if err != nil {
			logrus.WithError(err).Warn("dispatch failed")
			return
		}
		if len(deliveries) > 0 {
			refreshSvc.HandleDelivered(jobCtx, deliveries, now)
		}
	}); err != nil {
		logrus.WithError(err).Fatal("schedule dispatch")
	}
	if _, err := scheduler.ScheduleInterval(cfg.RefreshInterval, func() {
		reconcile("background wake")
	}); err != nil {
		logrus.WithError(err).Fatal("schedule refresh")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Startup doubles as the foreground trigger.
	if tasks, err := taskSvc.List(ctx, false); err == nil {
		logrus.WithField("tasks", len(tasks)).Info("reminder daemon started")
	}
	reconcile("startup")

	<-ctx.Done()
	logrus.Info("shutdown complete")
}
