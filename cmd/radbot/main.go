package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/perrymanuk/radbot-sub001/internal/agent"
	"github.com/perrymanuk/radbot-sub001/internal/alerts"
	"github.com/perrymanuk/radbot-sub001/internal/api"
	"github.com/perrymanuk/radbot-sub001/internal/delivery"
	"github.com/perrymanuk/radbot-sub001/internal/dispatch"
	"github.com/perrymanuk/radbot-sub001/internal/registry"
	"github.com/perrymanuk/radbot-sub001/internal/store"
	"github.com/perrymanuk/radbot-sub001/internal/trigger"
	"github.com/perrymanuk/radbot-sub001/internal/util"
	"github.com/perrymanuk/radbot-sub001/internal/ws"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for radbot state data
	DefaultStateDir = "/var/lib/radbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "radbot.db"
	// DefaultAPIAddr is the default API listen address
	DefaultAPIAddr = ":8080"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("radbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("radbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	OpenAIKey    string
	APIAddr      string
	PollInterval string
	AlertsOn     bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	apiAddr      *string
	pollInterval *string
	alertsOn     *bool
}

// initializeLogger sets up structured logging, with the level taken from
// $LOG_LEVEL (debug, info, warn, error; default info).
func initializeLogger() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("RADBOT_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		APIAddr:      os.Getenv("API_ADDR"),
		PollInterval: os.Getenv("POLL_INTERVAL"),
		AlertsOn:     util.ParseBoolEnv("SMS_ALERTS", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No RADBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"RADBOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"POLL_INTERVAL", config.PollInterval,
		"SMS_ALERTS", config.AlertsOn)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for radbot data (overrides $RADBOT_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		pollInterval: flag.String("poll-interval", config.PollInterval, "trigger poll interval, e.g. 5s (overrides $POLL_INTERVAL)"),
		alertsOn:     flag.Bool("sms-alerts", config.AlertsOn, "send SMS alerts for queued notifications (overrides $SMS_ALERTS)"),
	}

	flag.Parse()

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"pollInterval", *flags.pollInterval,
		"smsAlerts", *flags.alertsOn)

	return flags
}

// buildStore opens the storage backend selected by the DSN.
func buildStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Info("Using PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Info("Using SQLite store", "path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildExecutor selects the scheduled-task executor. Without an OpenAI key
// the echo executor keeps task plumbing functional.
func buildExecutor(openaiKey string) dispatch.TaskExecutor {
	if openaiKey != "" {
		os.Setenv("OPENAI_API_KEY", openaiKey)
	}
	executor, err := agent.NewExecutor()
	if err != nil {
		slog.Warn("OpenAI executor unavailable, falling back to echo executor", "error", err)
		return agent.EchoExecutor{}
	}
	return executor
}

// buildAlerter configures the optional SMS side channel.
func buildAlerter(enabled bool) delivery.Alerter {
	if !enabled {
		return nil
	}
	client, err := alerts.NewClient()
	if err != nil {
		slog.Warn("SMS alerts requested but Twilio is not configured", "error", err)
		return nil
	}
	slog.Info("SMS alerts enabled")
	return client
}

func run(flags Flags) error {
	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	pollInterval := trigger.DefaultPollInterval
	if *flags.pollInterval != "" {
		d, parseErr := time.ParseDuration(*flags.pollInterval)
		if parseErr != nil {
			slog.Warn("Invalid poll interval, using default", "value", *flags.pollInterval, "default", pollInterval)
		} else {
			pollInterval = d
		}
	}

	reg := registry.New()
	queue := delivery.NewQueue(st, reg, buildAlerter(*flags.alertsOn))
	dispatcher := dispatch.NewDispatcher(st, queue, buildExecutor(*flags.openaiKey))
	engine := trigger.NewEngine(st, dispatcher, pollInterval)

	// A fresh connection drains the owner's backlog immediately.
	reg.OnRegister(func(ownerID string) {
		if flushErr := queue.Flush(ownerID); flushErr != nil {
			slog.Error("main: backlog flush on connect failed", "ownerID", ownerID, "error", flushErr)
		}
	})

	// Reset claims orphaned by a previous crash before the first poll.
	if err := engine.RecoverStale(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go engine.Run(ctx)

	slog.Info("Bootstrapping radbot", "apiAddr", *flags.apiAddr, "pollInterval", pollInterval)
	return api.NewServer(st, ws.NewServer(reg)).Run(ctx, *flags.apiAddr)
}
