package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"sharepairs/internal/audit"
	"sharepairs/internal/conversation"
	"sharepairs/internal/distress"
	jwttoken "sharepairs/internal/jwt_token"
	"sharepairs/internal/match"
	"sharepairs/internal/message"
	"sharepairs/internal/platform/config"
	"sharepairs/internal/platform/httpserver"
	"sharepairs/internal/platform/kafka"
	"sharepairs/internal/platform/logger"
	"sharepairs/internal/platform/metrics"
	platformredis "sharepairs/internal/platform/redis"
	httptransport "sharepairs/internal/transport/http"
	"sharepairs/internal/user"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	defer db.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.AlertTopic, cfg.Kafka.DLQTopic); err != nil {
		log.Error("ensure kafka topics", "error", err)
		os.Exit(1)
	}
	alertQueue, err := kafka.NewAlertQueue(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic)
	if err != nil {
		log.Error("create alert queue", "error", err)
		os.Exit(1)
	}
	defer alertQueue.Close()

	m := metrics.New()

	userStore := user.NewPostgresStore(db)
	userTx := user.NewPostgresTx(db)
	convStore := conversation.NewPostgresStore(db)
	msgStore := message.NewPostgresStore(db)
	distressStore := distress.NewPostgresStore(db)
	auditStore := audit.NewPostgresStore(db)
	auditPub := audit.NewPublisher(auditStore)

	var guard distress.WindowGuard
	if redisClient != nil {
		guard = distress.NewRedisWindowGuard(redisClient.Client, cfg.Distress.RateWindow)
	}

	matchSvc := match.NewService(userStore, userTx, auditPub, log)
	convSvc := conversation.NewService(convStore, auditPub, cfg.SupportUserID, log)
	msgSvc := message.NewService(msgStore, convStore, convSvc, userStore, auditPub, m, log)
	distressSvc := distress.NewService(
		distress.Config{
			Threshold:  cfg.Distress.Threshold,
			RateWindow: cfg.Distress.RateWindow,
			From:       cfg.Distress.From,
			Recipients: cfg.Distress.Recipients,
		},
		distressStore, alertQueue, guard, userStore, nil, auditPub, m, log,
	)

	jwtService := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	handler := httptransport.NewHandler(matchSvc, convSvc, msgSvc, distressSvc, auditPub, log)
	router := httptransport.NewRouter(handler, jwtService)

	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting sharepairs server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
