package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"speaker-diarizer/pkg/config"
	http_server "speaker-diarizer/pkg/http"
	"speaker-diarizer/pkg/messaging"
	"speaker-diarizer/pkg/metrics"
	"speaker-diarizer/pkg/version"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the streaming diarization server",
	Long: `Starts the websocket streaming server on /v1/diarize/stream together with
health, status and Prometheus endpoints. Speaker changes are published to AMQP
when AMQP_ENABLED is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}
	if err := cfg.ApplyLogging(logger); err != nil {
		return err
	}
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if !cfg.HTTP.Enabled {
		return fmt.Errorf("HTTP server is disabled by configuration, nothing to serve")
	}

	logger.WithFields(logrus.Fields{
		"version":      version.Version,
		"max_speakers": cfg.Diarization.MaxSpeakers,
		"sample_rate":  cfg.Audio.SampleRate,
	}).Info("Starting speaker diarizer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.SetMetricsPath(cfg.Metrics.Path)
	metrics.StartMetrics(ctx, logger, cfg.Metrics.Enabled)

	httpConfig := http_server.DefaultConfig()
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.MaxSessions = cfg.HTTP.MaxSessions
	httpConfig.EnableMetrics = cfg.Metrics.Enabled
	httpConfig.MetricsPath = cfg.Metrics.Path
	httpConfig.SampleRate = cfg.Audio.SampleRate
	httpConfig.BlockSize = cfg.Audio.BlockSize
	httpConfig.Diarization = cfg.Diarization.Settings()

	server := http_server.NewServer(logger, httpConfig)

	var publisher *messaging.AMQPPublisher
	var forwarder *messaging.EventForwarder
	if cfg.Messaging.AMQPEnabled {
		publisher = messaging.NewAMQPPublisher(logger, messaging.AMQPConfig{
			URL:          cfg.Messaging.AMQPUrl,
			ExchangeName: cfg.Messaging.AMQPExchange,
			RoutingKey:   cfg.Messaging.AMQPRoutingKey,
			QueueName:    cfg.Messaging.AMQPQueueName,
			Durable:      true,
		})
		if err := publisher.Connect(); err != nil {
			logger.WithError(err).Warn("Failed to connect to AMQP, retrying in the background")
			go retryAMQP(ctx, publisher)
		}
		forwarder = messaging.NewEventForwarder(logger, publisher, cfg.Messaging.BufferSize)
		server.SetSpeakerListener(forwarder)
		server.SetAMQPClient(publisher)
	} else {
		logger.Info("AMQP speaker events disabled")
	}

	server.Start()

	<-ctx.Done()
	logger.Info("Received shutdown signal, cleaning up...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpConfig.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error shutting down HTTP server")
	}

	if forwarder != nil {
		forwarder.Close()
		logger.WithField("stats", forwarder.Stats()).Info("Speaker event forwarder stopped")
	}
	if publisher != nil {
		publisher.Disconnect()
	}

	logger.Info("Shutdown complete")
	return nil
}

// retryAMQP keeps dialing until the broker is reachable or ctx is done
func retryAMQP(ctx context.Context, publisher *messaging.AMQPPublisher) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		err := publisher.Connect()
		if err == nil {
			return
		}
		logger.WithError(err).Debug("AMQP still unreachable")

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
