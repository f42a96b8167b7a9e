package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yls-backend/internal/config"
	"yls-backend/internal/db"
	"yls-backend/internal/events"
	"yls-backend/internal/handlers"
	"yls-backend/internal/router"
	"yls-backend/internal/services"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	setupLogging()

	if err := config.LoadConfig(os.Getenv("CONFIG_PATH")); err != nil {
		logrus.WithError(err).Fatal("❌ Failed to load configuration")
	}
	cfg := config.AppConfig

	logrus.WithFields(logrus.Fields{
		"chain_id": cfg.Blockchain.ChainID,
		"env":      cfg.Server.Env,
	}).Info("🚀 Starting YLS relay backend")

	if err := db.InitDB(); err != nil {
		// Postgres is required for the default replay store; the memory
		// store keeps development setups working without it.
		if cfg.Relay.Store == "postgres" {
			logrus.WithError(err).Fatal("❌ Database required for postgres replay store")
		}
		logrus.WithError(err).Warn("⚠️ Database unavailable, transaction tracking disabled")
	}

	client := dialEthClient(cfg.Blockchain.RPCEndpoints)
	defer client.Close()

	signer, err := services.NewSigningStrategy(cfg.Blockchain)
	if err != nil {
		logrus.WithError(err).Fatal("❌ Failed to initialize relayer signing")
	}
	logrus.WithFields(logrus.Fields{
		"strategy": signer.Name(),
		"address":  signer.Address().Hex(),
	}).Info("✅ Relayer signing initialized")

	publisher, err := events.NewPublisher(cfg.NATS)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ NATS unavailable, relay events disabled")
	}
	defer publisher.Close()

	replayStore := buildReplayStore(cfg)

	chainData := services.NewChainDataService(client, cfg)
	relayer := services.NewRelayerService(client, signer, chainData, db.DB, publisher, cfg)
	relay := services.NewRelayService(services.NewSignatureService(), replayStore, relayer)
	monitor := services.NewMonitoringService(relayer)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relayer.StartReceiptChecker()
	monitor.Start()
	services.StartReplayPruner(rootCtx, replayStore, cfg.Relay.RetentionWindow, cfg.Relay.PruneInterval)

	engine := router.New(cfg, &router.Handlers{
		Relay:     handlers.NewRelayHandler(relay, relayer),
		Staking:   handlers.NewStakingHandler(chainData),
		Swap:      handlers.NewSwapHandler(chainData),
		Gas:       handlers.NewGasHandler(chainData),
		AdminAuth: handlers.NewAdminAuthHandler(cfg.Admin),
		Admin: handlers.NewAdminHandler(relayer, func(ctx context.Context) (*big.Int, error) {
			return client.BalanceAt(ctx, signer.Address(), nil)
		}),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logrus.WithField("addr", addr).Info("✅ HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("❌ HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("🛑 Shutting down")
	cancel()
	monitor.Stop()
	relayer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("❌ Forced shutdown")
	}
	logrus.Info("👋 Server stopped")
}

func setupLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// dialEthClient tries the configured RPC endpoints in order and keeps the
// first one that answers.
func dialEthClient(endpoints []string) *ethclient.Client {
	for _, endpoint := range endpoints {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := ethclient.DialContext(ctx, endpoint)
		if err == nil {
			if _, err = client.ChainID(ctx); err == nil {
				cancel()
				logrus.WithField("endpoint", endpoint).Info("✅ RPC endpoint connected")
				return client
			}
			client.Close()
		}
		cancel()
		logrus.WithError(err).WithField("endpoint", endpoint).Warn("⚠️ RPC endpoint unreachable, trying next")
	}
	logrus.Fatal("❌ No reachable RPC endpoint")
	return nil
}

// buildReplayStore selects the replay store backend from configuration
func buildReplayStore(cfg *config.Config) services.ReplayStore {
	switch cfg.Relay.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logrus.WithError(err).Fatal("❌ Redis required for redis replay store")
		}
		logrus.Info("✅ [Replay] Using redis store")
		return services.NewRedisReplayStore(client, cfg.Relay.RetentionWindow)
	case "memory":
		logrus.Warn("⚠️ [Replay] Using in-memory store, replay protection does not survive restarts")
		return services.NewMemoryReplayStore()
	default:
		if db.DB == nil {
			logrus.Fatal("❌ Postgres replay store selected but database is unavailable")
		}
		logrus.Info("✅ [Replay] Using postgres store")
		return services.NewGormReplayStore(db.DB)
	}
}
