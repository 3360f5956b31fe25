package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/defiboxswap/DefiboxVault/config"
	"github.com/defiboxswap/DefiboxVault/gateway/middleware"
	"github.com/defiboxswap/DefiboxVault/gateway/routes"
	"github.com/defiboxswap/DefiboxVault/native/token"
	"github.com/defiboxswap/DefiboxVault/native/vault"
	"github.com/defiboxswap/DefiboxVault/observability/logging"
	"github.com/defiboxswap/DefiboxVault/storage"
)

// resolveLogEnv prefers the VAULT_ENV override, falling back to the
// configured LogEnv.
func resolveLogEnv(env, configured string) string {
	if env = strings.TrimSpace(env); env != "" {
		return env
	}
	return strings.TrimSpace(configured)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("vaultd", resolveLogEnv(os.Getenv("VAULT_ENV"), cfg.LogEnv))

	var db storage.Database
	if strings.TrimSpace(cfg.DataDir) == "" {
		logger.Warn("no data directory configured, state will not survive restarts")
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	ledger := token.NewLedger(db)
	engine := vault.NewEngine(cfg.Vault)
	engine.SetState(vault.NewStore(db))
	engine.SetLedger(ledger)
	engine.SetEmitter(logEmitter{logger: logger})

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "vaultd",
		LogRequests: true,
	}, logger)

	handler := routes.New(routes.Config{
		Vault:         routes.NewVaultRoutes(engine, ledger, logger),
		Observability: obs,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("vaultd listening", slog.String("address", cfg.ListenAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", slog.Any("error", err))
	}
}
