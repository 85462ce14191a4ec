package main

import (
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/unity-vault/vaultbot/pkg/dataaccess/connection"
	"github.com/unity-vault/vaultbot/pkg/logging"
	"go.mongodb.org/mongo-driver/mongo"
)

// AppName is the name of the application.
const AppName = "vaultbot"

// Config is the environment-level configuration. Per-guild settings live in
// the database; the default channel/category values here are used only when
// the per-guild config is unset.
type Config struct {
	// BotToken is the token for the bot.
	BotToken string `env:"BOT_TOKEN,required"`

	// ApplicationID is the ID of the Discord application.
	ApplicationID string `env:"APPLICATION_ID,required"`

	// MongoURI is the URI for the MongoDB database.
	MongoURI string `env:"MONGO_URI,required"`

	// MonitoringPort is the port for the monitoring server.
	MonitoringPort string `env:"MONITORING_PORT" envDefault:"8080"`

	// DefaultTicketCategoryID is the fallback category for ticket channels.
	DefaultTicketCategoryID string `env:"TICKET_CATEGORY_ID"`

	// DefaultLogChannelID is the fallback audit log channel.
	DefaultLogChannelID string `env:"LOG_CHANNEL_ID"`

	// DefaultOnboardingChannelID is the fallback onboarding channel.
	DefaultOnboardingChannelID string `env:"ONBOARDING_CHANNEL_ID"`
}

// loadConfig reads the environment, layering in a .env file when present.
// Missing required values are fatal: the bot refuses to start degraded.
func loadConfig(l *slog.Logger) *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		l.Debug("No .env file loaded", slog.String(logging.KeyError, err.Error()))
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		l.Error("Not all required environment variables have been provided", slog.String(logging.KeyError, err.Error()))
		os.Exit(1)
	}
	return &cfg
}

// connectMongo dials the database and exits on failure; the bot has no
// degraded mode without persistence.
func connectMongo(l *slog.Logger, cfg *Config) *mongo.Client {
	mongoConn := new(connection.MongoDB)
	mongoConn.ConnectionString = cfg.MongoURI

	db, err := mongoConn.Connect()
	if err != nil {
		l.Error("Error connecting to mongo", slog.String(logging.KeyError, err.Error()))
		os.Exit(1)
	}

	l.Debug("Connected to MongoDB")
	return db
}
