package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hourglass/internal/config"
	"hourglass/internal/credential"
	server "hourglass/internal/http"
	"hourglass/internal/mail"
	"hourglass/internal/postgres"
	"hourglass/internal/workflow"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("connect to database", zap.Error(err))
	}
	defer store.Close()

	var denylist mail.Denylist = mail.NewStaticDenylist(nil)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal("connect to redis", zap.Error(err))
		}
		defer client.Close()
		denylist = mail.NewRedisDenylist(client, cfg.RedisDenylistKey)
	}

	var mailer mail.Mailer = mail.NewLogMailer(log)
	if cfg.AMQPURL != "" {
		queue, err := mail.NewQueueMailer(cfg.AMQPURL, cfg.MailQueue)
		if err != nil {
			log.Fatal("connect to message broker", zap.Error(err))
		}
		defer queue.Close()
		mailer = queue
	}

	credentials := credential.NewEngine(store, mailer, denylist, log)
	workflows := workflow.NewEngine(store, log)
	srv := server.NewServer(cfg, store, credentials, workflows, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("serve", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}
}
