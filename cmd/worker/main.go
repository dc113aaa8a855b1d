package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"sharepairs/internal/audit"
	"sharepairs/internal/distress"
	"sharepairs/internal/platform/config"
	"sharepairs/internal/platform/kafka"
	"sharepairs/internal/platform/logger"
	"sharepairs/internal/platform/metrics"
	"sharepairs/internal/user"
	"sharepairs/pkg/email"
)

// main runs the alert worker: it consumes distress queue records and
// dispatches notification emails. Redelivery-safe by design, so running more
// than one replica is fine.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.AlertTopic, cfg.Kafka.DLQTopic); err != nil {
		log.Error("ensure kafka topics", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	userStore := user.NewPostgresStore(db)
	distressStore := distress.NewPostgresStore(db)
	auditPub := audit.NewPublisher(audit.NewPostgresStore(db))
	sender := email.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.Username, cfg.SMTP.Password)

	distressSvc := distress.NewService(
		distress.Config{
			Threshold:  cfg.Distress.Threshold,
			RateWindow: cfg.Distress.RateWindow,
			From:       cfg.Distress.From,
			Recipients: cfg.Distress.Recipients,
		},
		distressStore, nil, nil, userStore, sender, auditPub, m, log,
	)

	consumer, err := kafka.NewAlertConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.AlertTopic,
		cfg.Kafka.DLQTopic,
		cfg.Kafka.ConsumerGroup,
		distressSvc.ProcessQueueRecord,
		log,
	)
	if err != nil {
		log.Error("create alert consumer", "error", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting alert worker", "group", cfg.Kafka.ConsumerGroup)
		return consumer.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		consumer.Close()
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("worker exited", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}
