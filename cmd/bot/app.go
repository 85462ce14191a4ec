package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/alexliesenfeld/health"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unity-vault/vaultbot/pkg/dataaccess"
	"github.com/unity-vault/vaultbot/pkg/logging"
	"github.com/unity-vault/vaultbot/pkg/ratelimit"
	"github.com/unity-vault/vaultbot/pkg/request"
	"github.com/unity-vault/vaultbot/pkg/ticketing"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/time/rate"
)

const (
	// PathMetrics is the path for metrics.
	PathMetrics = "/metrics"

	// PathHealth is the path for the health check.
	PathHealth = "/health"

	// stateSweepInterval is how often expired interaction state is removed.
	stateSweepInterval = time.Minute
)

// IApp is the surface that interaction handlers work against.
type IApp interface {
	// Log returns the application logger.
	Log() *slog.Logger

	// Session returns the discord session.
	Session() *discordgo.Session

	// Config returns the environment configuration.
	Config() *Config

	// GuildDal returns the guild config store.
	GuildDal() dataaccess.GuildDal

	// TicketDal returns the ticket record store.
	TicketDal() dataaccess.TicketDal

	// StateDal returns the ephemeral interaction state store.
	StateDal() dataaccess.StateDal

	// Limiter returns the rate limit checker.
	Limiter() *ratelimit.Checker

	// Tickets returns the ticket lifecycle engine.
	Tickets() *ticketing.Service

	// Mongo returns the database client, for connectivity checks.
	Mongo() *mongo.Client

	// GetJoinedGuilds returns every guild the bot is a member of.
	GetJoinedGuilds() ([]*discordgo.UserGuild, error)

	// Health returns the shared health checker backing /health and /status.
	Health() health.Checker

	// Uptime returns how long the process has been running.
	Uptime() time.Duration
}

type App struct {
	// is the logger.
	*slog.Logger

	// cfg is the environment configuration.
	cfg *Config

	// r is the router for the monitoring server.
	r *mux.Router

	// svr is the monitoring server.
	svr *http.Server

	// s is the discord session.
	s *discordgo.Session

	// mongo is the database client.
	mongo *mongo.Client

	// guildDal, ticketDal, stateDal are the data access layers.
	guildDal  dataaccess.GuildDal
	ticketDal dataaccess.TicketDal
	stateDal  dataaccess.StateDal

	// limiter is the rate limit checker guarding every entry point.
	limiter *ratelimit.Checker

	// tickets is the ticket lifecycle engine.
	tickets *ticketing.Service

	// health is the checker behind /health and /status.
	health health.Checker

	// eventNotifier is the channel for notifying of gateway events.
	eventNotifier chan any

	// sweepStop stops the interaction state sweeper.
	sweepStop chan struct{}

	// startedAt is when Run was entered.
	startedAt time.Time
}

// NewApp creates a new instance of App.
func NewApp(l *slog.Logger, r *mux.Router) *App {
	return &App{
		Logger: l,
		r:      r,
	}
}

func (a *App) Run() error {
	a.startedAt = time.Now()
	a.cfg = loadConfig(a.Logger)
	a.mongo = connectMongo(a.Logger, a.cfg)

	a.guildDal = dataaccess.NewGuildDal(a.Logger, a.mongo)
	a.ticketDal = dataaccess.NewTicketDal(a.Logger, a.mongo)
	a.stateDal = dataaccess.NewStateDal(a.Logger, a.mongo)
	a.limiter = ratelimit.NewChecker(a.Logger, dataaccess.NewRateLimitDal(a.Logger, a.mongo))

	// Register bot.
	if err := a.RegisterBot(); err != nil {
		return fmt.Errorf("error registering bot: %w", err)
	}

	channels := newDiscordChannelManager(a)
	// Audit delivery is paced so a burst of lifecycle events cannot hammer
	// the platform API.
	sink := newDiscordLogSink(a, rate.NewLimiter(rate.Every(2*time.Second), 5))
	a.tickets = ticketing.NewService(a.Logger, a.guildDal, a.ticketDal, a.limiter, channels, sink)

	a.s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		a.Info(fmt.Sprintf("Logged in as %s#%s", r.User.Username, r.User.Discriminator))

		if err := s.UpdateGameStatus(0, "/help for support"); err != nil {
			a.Warn("Error setting presence", slog.String(logging.KeyError, err.Error()))
		}
	})

	if err := a.RegisterDiscordHandlers(); err != nil {
		return fmt.Errorf("error registering discord handlers: %w", err)
	}

	// Start event listener.
	go a.eventListener()

	// Open websocket.
	if err := a.s.Open(); err != nil {
		return fmt.Errorf("error opening connection to Discord: %w", err)
	}

	// Register slash commands. This needs the open session to enumerate
	// guilds.
	if err := a.registerSlashCommands(); err != nil {
		return fmt.Errorf("error registering slash commands: %w", err)
	}

	a.Info("Bot is now running.")

	a.sweepStop = make(chan struct{})
	go a.startStateSweeper()

	a.health = a.newHealthChecker()
	a.generateServer()
	a.runServer()

	// Register listener for shutdown signal.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	sig := <-c
	a.Info("Received shutdown signal", slog.String("signal", sig.String()))
	if err := a.ShutdownHook(); err != nil {
		a.Error("Error shutting down application", slog.String(logging.KeyError, err.Error()))
	}
	return nil
}

func (a *App) ShutdownHook() error {
	// Reset the total number of guilds to 0.
	TotalDiscordGuilds.Set(0)

	// Stop the state sweeper.
	close(a.sweepStop)

	// Unregister slash commands.
	if err := a.unregisterSlashCommands(); err != nil {
		return fmt.Errorf("error unregistering slash commands: %w", err)
	}

	// Close the connection to Discord.
	if err := a.s.Close(); err != nil {
		return fmt.Errorf("error closing connection to Discord: %w", err)
	}

	// Release the database handle.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.mongo.Disconnect(ctx); err != nil {
		return fmt.Errorf("error disconnecting from mongo: %w", err)
	}
	return nil
}

func (a *App) RegisterBot() error {
	// Default the number of guilds to 0.
	TotalDiscordGuilds.Set(0)

	dg, err := discordgo.New("Bot " + a.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("error creating Discord session: %w", err)
	}

	dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsAll)

	if a.eventNotifier == nil {
		// Buffered to prevent blocking the gateway reader.
		a.eventNotifier = make(chan any, 100)
	}

	dg.SetEventNotifier(a.eventNotifier)

	a.s = dg
	return nil
}

func (a *App) runServer() {
	a.r.HandleFunc(PathMetrics, promhttp.Handler().ServeHTTP).Methods(http.MethodGet)
	a.r.HandleFunc(PathHealth, middlewareHttp(a.healthCheck(), a)).Methods(http.MethodGet)

	a.r.NotFoundHandler = request.NotFoundHandler(a.Logger)
	a.r.MethodNotAllowedHandler = request.MethodNotAllowedHandler(a.Logger)

	go func() {
		a.Info("Starting monitoring server")
		if err := a.svr.ListenAndServe(); err != nil {
			a.Error("Error starting monitoring server", slog.String(logging.KeyError, err.Error()))
			a.Warn("Monitoring server will not be available")
		}
	}()
}

func (a *App) generateServer() {
	a.svr = &http.Server{
		Addr:    ":" + a.cfg.MonitoringPort,
		Handler: a.r,
	}
}

func (a *App) GetJoinedGuilds() ([]*discordgo.UserGuild, error) {
	guilds, err := a.s.UserGuilds(0, "", "")
	if err != nil {
		return nil, fmt.Errorf("error getting guilds: %w", err)
	}
	return guilds, nil
}

func (a *App) RegisterDiscordHandlers() error {
	// Bot joined guild.
	a.s.AddHandler(guildJoinedHandler(a))

	// Bot left guild.
	a.s.AddHandler(guildLeaveHandler(a))

	// New member onboarding.
	a.s.AddHandler(guildMemberAddHandler(a))

	// Interaction create handler: the dispatch tables are built once at
	// startup; anything not in them is answered with "not configured".
	a.s.AddHandler(interactionHandler(a, &dispatchTables{
		commands: map[string]commandProcessor{
			PingCmdName:        pingHandler,
			HelpCmdName:        helpHandler,
			StatusCmdName:      statusHandler,
			ConfigCmdName:      configHandler,
			TicketPanelCmdName: ticketPanelHandler,
		},
		buttons: map[string]commandProcessor{
			TicketOpenID:         openTicketHandler,
			TicketCloseID:        closeTicketHandler,
			TicketCloseConfirmID: closeConfirmHandler,
			TicketEscalateID:     escalateTicketHandler,
		},
		selects: map[string]commandProcessor{
			TicketSelectTypeID: selectTicketTypeHandler,
		},
		modals: modalHandlers(),
	}))
	return nil
}

func (a *App) eventListener() {
	for e := range a.eventNotifier {
		switch t := e.(type) {
		case *discordgo.Event:
			if t.Type != "" {
				TotalDiscordEvents.WithLabelValues(t.Type).Inc()
			} else {
				// If there is no type, then use the operation name.
				TotalDiscordEvents.WithLabelValues(strings.ToUpper(t.Operation.String())).Inc()
			}
		default:
			a.Error("Unknown event type", slog.String("type", fmt.Sprintf("%T", e)))
			TotalDiscordEvents.WithLabelValues("UNKNOWN").Inc()
		}
	}
}

func (a *App) registerSlashCommands() error {
	// Get all guilds the bot is in.
	guilds, err := a.GetJoinedGuilds()
	if err != nil {
		return fmt.Errorf("error getting guilds: %w", err)
	}

	// Register every slash command for each guild.
	for _, g := range guilds {
		for _, cmd := range slashCommands {
			if _, err := a.s.ApplicationCommandCreate(a.cfg.ApplicationID, g.ID, cmd); err != nil {
				return fmt.Errorf("error creating %s command for guild %s: %w", cmd.Name, g.ID, err)
			}
		}
	}
	return nil
}

func (a *App) unregisterSlashCommands() error {
	// Get all guilds the bot is in.
	guilds, err := a.GetJoinedGuilds()
	if err != nil {
		return fmt.Errorf("error getting guilds: %w", err)
	}

	for _, guild := range guilds {
		cmds, err := a.s.ApplicationCommands(a.cfg.ApplicationID, guild.ID)
		if err != nil {
			return fmt.Errorf("error listing commands for guild %s: %w", guild.ID, err)
		}
		for _, cmd := range cmds {
			if err := a.s.ApplicationCommandDelete(a.cfg.ApplicationID, guild.ID, cmd.ID); err != nil {
				return fmt.Errorf("error deleting %s command for guild %s: %w", cmd.Name, guild.ID, err)
			}
		}
	}
	return nil
}

func (a *App) Log() *slog.Logger {
	return a.Logger
}

func (a *App) Session() *discordgo.Session {
	return a.s
}

func (a *App) Config() *Config {
	return a.cfg
}

func (a *App) GuildDal() dataaccess.GuildDal {
	return a.guildDal
}

func (a *App) TicketDal() dataaccess.TicketDal {
	return a.ticketDal
}

func (a *App) StateDal() dataaccess.StateDal {
	return a.stateDal
}

func (a *App) Limiter() *ratelimit.Checker {
	return a.limiter
}

func (a *App) Tickets() *ticketing.Service {
	return a.tickets
}

func (a *App) Mongo() *mongo.Client {
	return a.mongo
}

func (a *App) Health() health.Checker {
	return a.health
}

func (a *App) Uptime() time.Duration {
	return time.Since(a.startedAt)
}
