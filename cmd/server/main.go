package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/ledsync/internal/adapter/filestore"
	"github.com/pscheid92/ledsync/internal/adapter/httpserver"
	"github.com/pscheid92/ledsync/internal/adapter/metrics"
	"github.com/pscheid92/ledsync/internal/adapter/mqtt"
	"github.com/pscheid92/ledsync/internal/adapter/redis"
	"github.com/pscheid92/ledsync/internal/adapter/websocket"
	"github.com/pscheid92/ledsync/internal/broadcast"
	"github.com/pscheid92/ledsync/internal/devicestate"
	"github.com/pscheid92/ledsync/internal/domain"
	"github.com/pscheid92/ledsync/internal/platform/config"
	"github.com/pscheid92/ledsync/internal/platform/logging"
	"github.com/pscheid92/ledsync/internal/platform/retry"
)

const (
	shutdownTimeout  = 10 * time.Second
	mqttDisconnectMs = 250
)

var startupPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Startup dependency unavailable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

// gatewayResult bundles the persistence gateway with what must be closed on shutdown.
type gatewayResult struct {
	gateway     domain.Gateway
	redisClient *goredis.Client
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupGateway(ctx context.Context, cfg *config.Config, storageMetrics *metrics.StorageMetrics) (gatewayResult, error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		rdb, err := retry.Do(ctx, startupPolicy, retry.RetryUnlessCanceled, func(ctx context.Context) (*goredis.Client, error) {
			return redis.NewClient(ctx, cfg.RedisURL, storageMetrics)
		})
		if err != nil {
			return gatewayResult{}, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("Using redis storage", "key_prefix", cfg.RedisKeyPrefix)
		return gatewayResult{gateway: redis.NewStore(rdb, cfg.RedisKeyPrefix), redisClient: rdb}, nil

	default:
		store, err := filestore.New(cfg.DBFile, storageMetrics)
		if err != nil {
			return gatewayResult{}, fmt.Errorf("failed to open data file: %w", err)
		}
		slog.Info("Using file storage", "path", cfg.DBFile)
		return gatewayResult{gateway: store}, nil
	}
}

func setupMQTT(ctx context.Context, cfg *config.Config) (paho.Client, *mqtt.Mirror, error) {
	client, err := retry.Do(ctx, startupPolicy, retry.RetryUnlessCanceled, func(context.Context) (paho.Client, error) {
		return mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID)
	})
	if err != nil {
		return nil, nil, err
	}
	return client, mqtt.NewMirror(client, cfg.MQTTTopicPrefix), nil
}

func runGracefulShutdown(srv *httpserver.Server, broadcaster *broadcast.Broadcaster, mirror *mqtt.Mirror, mqttClient paho.Client, redisClient *goredis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// The broadcaster is the only producer for the mirror, so it stops first.
		broadcaster.Stop()

		if mirror != nil {
			mirror.Stop()
		}
		if mqttClient != nil {
			mqttClient.Disconnect(mqttDisconnectMs)
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				slog.Error("Failed to close redis client", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "storage", cfg.StorageBackend)

	m := metrics.NewSet(cfg.StorageBackend)
	ctx := context.Background()

	storage, err := setupGateway(ctx, cfg, m.Storage)
	if err != nil {
		slog.Error("Failed to set up storage", "error", err)
		os.Exit(1)
	}

	healthChecks := []httpserver.HealthCheck{{Name: "storage", Check: storage.gateway.Ping}}

	var (
		observers  []domain.DeltaObserver
		mirror     *mqtt.Mirror
		mqttClient paho.Client
	)
	if cfg.MQTTEnabled() {
		mqttClient, mirror, err = setupMQTT(ctx, cfg)
		if err != nil {
			slog.Error("Failed to connect to MQTT broker", "broker", cfg.MQTTBrokerURL, "error", err)
			os.Exit(1)
		}
		observers = append(observers, mirror)
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "mqtt", Check: mqtt.HealthCheck(mqttClient)})
		slog.Info("Mirroring device state to MQTT", "broker", cfg.MQTTBrokerURL, "topic_prefix", cfg.MQTTTopicPrefix)
	}

	state := devicestate.NewStore(domain.DefaultDeviceState())
	broadcaster := broadcast.NewBroadcaster(state, clock, cfg.MaxWebSocketConnections, m.WebSocket, observers...)

	wsHandler := websocket.NewHandler(broadcaster, websocket.NewCheckOrigin(cfg.WSAllowedOrigins, cfg.IsDevelopment()), clock)

	srv := httpserver.NewServer(cfg, storage.gateway, state, wsHandler, m.Handler(), m.HTTP, healthChecks)

	done := runGracefulShutdown(srv, broadcaster, mirror, mqttClient, storage.redisClient)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
