package worker

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tuitora/tuitora-gateway/internal/config"
	"github.com/tuitora/tuitora-gateway/internal/db"
	"github.com/tuitora/tuitora-gateway/internal/dispatcher"
	"github.com/tuitora/tuitora-gateway/internal/kafka"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/repository"
	"github.com/tuitora/tuitora-gateway/internal/worker"
	"go.uber.org/zap"
)

var broadcastTopic string

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Consume queued broadcast messages from Kafka and send them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level, cfg.Log.Encoding)

		topic := broadcastTopic
		if topic == "" {
			topic = cfg.Kafka.BroadcastTopic
		}

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		provs, err := dispatcher.FromConfig(cfg.Providers)
		if err != nil {
			return err
		}
		disp := dispatcher.NewDispatcher(provs, cfg.Dispatcher.MaxRetryAttempts)

		consumer := kafka.NewConsumer(kafka.ConfigFor(cfg.Kafka, topic))
		defer func() { _ = consumer.Close() }()

		w := worker.NewBroadcast(consumer, disp, repository.NewMessagesRepository(mysqlDB))
		if cfg.Dispatcher.WorkerCount > 0 {
			w.Workers = cfg.Dispatcher.WorkerCount
		}
		if cfg.Dispatcher.BatchSize > 0 {
			w.BatchSize = cfg.Dispatcher.BatchSize
		}
		if cfg.Dispatcher.BatchWait > 0 {
			w.BatchWait = cfg.Dispatcher.BatchWait
		}
		if cfg.SMS.SendTimeout > 0 {
			w.SendTimeout = cfg.SMS.SendTimeout
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("broadcast worker started",
			zap.String("topic", topic),
			zap.Int("workers", w.Workers),
			zap.Int("providers", len(provs)),
		)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Log.Info("broadcast worker stopped")
		return nil
	},
}

func init() {
	broadcastCmd.Flags().StringVar(&broadcastTopic, "topic", "", "Kafka topic (defaults to kafka.broadcast_topic)")
}
