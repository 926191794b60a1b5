package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"sessiond/core"
	"sessiond/gateway"
	"sessiond/storage"
)

type AppConfig struct {
	Core     *core.Config        `yaml:",inline"`
	Provider *gateway.LiveConfig `yaml:"provider,omitempty"`

	Routes RoutesConfig `yaml:"routes"`
	DB     DBConfig     `yaml:"db"`

	Port      string `yaml:"port"`
	LogFormat string `yaml:"log_format"`
}

type RoutesConfig struct {
	Protected   []string `yaml:"protected"`
	Public      []string `yaml:"public"`
	LoginPath   string   `yaml:"login_path"`
	LandingPath string   `yaml:"landing_path"`
}

type DBConfig struct {
	Type       string `yaml:"type"`
	SQLitePath string `yaml:"sqlite_path"`
}

func main() {
	configPath := getEnv("CONFIG_PATH", "config.yaml")
	appConfig := loadConfig(configPath)

	logger := newLogger(appConfig.LogFormat)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	metrics := core.NewMetrics(registry)

	store := initStore(appConfig.DB, logger)
	gw := initGateway(appConfig, store, logger)

	manager := core.NewSessionManager(gw, appConfig.Core, logger, metrics)
	defer manager.Close()

	classifier := initClassifier(appConfig.Routes)
	guard := core.NewRouteGuard(classifier, appConfig.Routes.LoginPath, appConfig.Routes.LandingPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager.Initialize(ctx)

	server := core.NewServer(manager, guard, metrics)

	r := chi.NewRouter()
	r.Mount("/", server.Routes())
	r.Handle("/metrics", core.MetricsHandler(registry))

	port := appConfig.Port
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting sessiond", slog.String("port", port))

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func loadConfig(path string) *AppConfig {
	var config AppConfig

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to read config file", slog.String("path", path), slog.String("error", err.Error()))
			os.Exit(1)
		}
		// no config file: run on defaults with the mock gateway
	} else if err := yaml.Unmarshal(data, &config); err != nil {
		slog.Error("failed to parse config file", slog.String("path", path), slog.String("error", err.Error()))
		os.Exit(1)
	}

	if config.Core == nil {
		config.Core = &core.Config{}
	}
	return &config
}

func newLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func initStore(dbConfig DBConfig, logger *slog.Logger) core.SessionStore {
	switch strings.ToLower(dbConfig.Type) {
	case "sqlite":
		store, err := storage.NewSQLiteStore(dbConfig.SQLitePath)
		if err != nil {
			logger.Error("failed to initialize sqlite store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("using sqlite store", slog.String("path", dbConfig.SQLitePath))
		return store

	case "", "memory":
		logger.Info("using in-memory store")
		return storage.NewMemoryStore()

	default:
		logger.Error("unsupported db type (supported: sqlite, memory)", slog.String("type", dbConfig.Type))
		os.Exit(1)
		return nil
	}
}

// initGateway selects the identity gateway exactly once: the live
// gateway when provider endpoint and key are both configured, the
// deterministic mock otherwise. The two are never mixed per call.
func initGateway(config *AppConfig, store core.SessionStore, logger *slog.Logger) core.IdentityGateway {
	if !config.Provider.Configured() {
		logger.Warn("identity provider not configured, using mock gateway")
		return gateway.NewMockGateway(store)
	}

	var crypto *core.CryptoService
	if config.Core.Crypto.EncryptionKey != "" {
		var err error
		crypto, err = core.NewCryptoService(config.Core.Crypto.EncryptionKey)
		if err != nil {
			logger.Error("failed to initialize crypto service", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		logger.Warn("no encryption key configured, sessions will not survive restarts")
		store = nil
	}

	logger.Info("using live identity gateway", slog.String("url", config.Provider.URL))
	return gateway.NewLiveGateway(config.Provider, store, crypto, logger)
}

func initClassifier(routes RoutesConfig) *core.RouteClassifier {
	protected := routes.Protected
	if len(protected) == 0 {
		protected = core.DefaultProtectedRoutes
	}
	public := routes.Public
	if len(public) == 0 {
		public = core.DefaultPublicRoutes
	}
	return core.NewRouteClassifier(protected, public)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
