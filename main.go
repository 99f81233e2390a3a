package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"oauth-provider/internal/clients"
	"oauth-provider/internal/common/logging"
	"oauth-provider/internal/config"
	"oauth-provider/internal/handlers"
	"oauth-provider/internal/lockout"
	"oauth-provider/internal/middleware"
	"oauth-provider/internal/provider"
	"oauth-provider/internal/server"
	"oauth-provider/internal/storage"
	"oauth-provider/internal/token"

	// Register storage adapters
	_ "oauth-provider/internal/storage/postgres"
	_ "oauth-provider/internal/storage/sqlite"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Invalid configuration", err)
		os.Exit(1)
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logging.Error("Failed to initialize credential store", err)
		os.Exit(1)
	}
	defer store.Close()
	logging.Info("Credential store ready", logging.String("type", cfg.DatabaseType))

	tracker := setupLockout(cfg)
	if tracker != nil {
		defer tracker.Close()
	}

	registry := clients.NewStaticRegistry(cfg.PublicClientID)
	signer := token.NewSigner(cfg.JWTSecret, "oauth-provider")
	grantProvider := provider.New(store, registry, cfg.TokenLifetime(), nil)

	h := handlers.New(store, grantProvider, signer, tracker)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.HandleFunc("/oauth/token", h.HandleToken).Methods("POST")
	router.HandleFunc("/oauth/authorize", h.HandleAuthorize).Methods("GET")
	router.HandleFunc("/api/users", h.HandleCreateUser).Methods("POST")
	router.HandleFunc("/api/users/password", h.HandleChangePassword).Methods("PUT")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	srv := server.New(router, cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("Received shutdown signal", logging.String("signal", sig.String()))
		if err := srv.Shutdown(); err != nil {
			logging.Error("Graceful shutdown failed", err)
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil {
			logging.Error("Server failed", err)
			os.Exit(1)
		}
	}
}

// setupLockout creates the failed-login tracker when Redis is configured.
// Lockout is optional: without Redis the server runs without it.
func setupLockout(cfg *config.Config) *lockout.Tracker {
	if cfg.RedisAddress == "" {
		logging.Info("Redis not configured, failed-login lockout disabled")
		return nil
	}

	redisDB, _ := strconv.Atoi(cfg.RedisDB)
	threshold, window := cfg.LockoutPolicy()

	tracker, err := lockout.NewTracker(&lockout.Config{
		Address:   cfg.RedisAddress,
		Password:  cfg.RedisPassword,
		DB:        redisDB,
		Threshold: threshold,
		Window:    window,
	})
	if err != nil {
		logging.Error("Failed to connect lockout tracker, continuing without lockout", err)
		return nil
	}

	logging.Info("Failed-login lockout enabled",
		logging.Int("threshold", threshold),
		logging.Duration("window", window))
	return tracker
}
