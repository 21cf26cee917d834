package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tuitora/tuitora-gateway/internal/db"
	"github.com/tuitora/tuitora-gateway/internal/dispatcher"
	httpSrv "github.com/tuitora/tuitora-gateway/internal/http"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"github.com/tuitora/tuitora-gateway/internal/repository"
	"github.com/tuitora/tuitora-gateway/internal/service/queue"
	"github.com/tuitora/tuitora-gateway/internal/session"
	"github.com/tuitora/tuitora-gateway/internal/sms"
	"github.com/tuitora/tuitora-gateway/internal/ussd"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (USSD webhook, SMS API, provider callbacks)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()

		// repos
		schoolsRepo := repository.NewSchoolsRepository(mysqlDB)
		messagesRepo := repository.NewMessagesRepository(mysqlDB)
		outboxRepo := repository.NewOutboxRepository(mysqlDB)
		auditRepo := repository.NewAuditRepository(chDB)
		directory := repository.NewCachedDirectory(
			repository.NewDirectoryRepository(mysqlDB), redisClient, cfg.Directory.CacheTTL)

		// ussd
		dc := cfg.USSD.DefaultContact
		menu := ussd.NewMachine(directory, ussd.NewCopy(cfg.USSD.Language),
			ussd.WithLookupTimeout(cfg.USSD.LookupTimeout),
			ussd.WithMaxLength(cfg.USSD.MaxLength),
			ussd.WithDefaultContact(model.SchoolContact{
				Name: dc.Name, Phone: dc.Phone, Email: dc.Email, Address: dc.Address,
			}),
		)
		sessions := session.NewRedisStore(redisClient, cfg.Session.KeyPrefix, cfg.Session.TTL)
		recorder := session.NewRecorder(sessions, auditRepo, cfg.Session.WriteTimeout)

		// sms
		provs, err := dispatcher.FromConfig(cfg.Providers)
		if err != nil {
			return err
		}
		disp := dispatcher.NewDispatcher(provs, cfg.Dispatcher.MaxRetryAttempts)
		smsSvc := sms.NewService(disp,
			sms.WithSenderID(cfg.SMS.SenderID),
			sms.WithConcurrency(cfg.SMS.Concurrency),
			sms.WithSendTimeout(cfg.SMS.SendTimeout),
		)
		queueSvc := queue.New(mysqlDB, messagesRepo, outboxRepo, cfg.Kafka.BroadcastTopic, cfg.SMS.SenderID)

		server := httpSrv.NewServer(httpSrv.Deps{
			Config:    cfg,
			Menu:      menu,
			Recorder:  recorder,
			Sessions:  sessions,
			SMS:       smsSvc,
			Broadcast: queueSvc,
			Schools:   schoolsRepo,
			Audit:     auditRepo,
			Messages:  messagesRepo,
			Redis:     redisClient,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		recorder.Wait()

		return nil
	},
}
