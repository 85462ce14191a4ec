package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/gorilla/mux"
	"github.com/unity-vault/vaultbot/pkg/logging"
	"github.com/unity-vault/vaultbot/pkg/messages"
	"github.com/unity-vault/vaultbot/pkg/ratelimit"
	"github.com/unity-vault/vaultbot/pkg/request"
)

// commandProcessor handles a single interaction. All slash command, button,
// select and modal handlers share this shape.
type commandProcessor func(a IApp, i *discordgo.InteractionCreate) error

// dispatchTables routes interactions to their processors by name or custom
// ID. Built once at startup.
type dispatchTables struct {
	commands map[string]commandProcessor
	buttons  map[string]commandProcessor
	selects  map[string]commandProcessor
	modals   map[string]commandProcessor
}

type Controller func(w http.ResponseWriter, r *http.Request)

func middlewareHttp(handler Controller, a IApp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		cw := request.NewClientWriter(w)

		// Recover from any panics that occur in the handler.
		defer func() {
			if rec := recover(); rec != nil {
				a.Log().Error("Panic in handler",
					slog.String(logging.KeyError, fmt.Sprintf("%v", rec)),
					slog.String("stack", string(debug.Stack())),
				)
				cw.WriteHeader(http.StatusInternalServerError)
				if err := json.NewEncoder(cw).Encode(request.NewMessage(request.ErrInternalServer.Error())); err != nil {
					a.Log().Error("Error encoding response", slog.String(logging.KeyError, err.Error()))
				}
			}
		}()

		var path string
		route := mux.CurrentRoute(r)
		if route != nil { // The route may be nil if the request is not routed.
			var err error
			path, err = route.GetPathTemplate()
			if err != nil {
				// An error here is only returned if the route does not define a path.
				a.Log().Error("Error getting path template", slog.String(logging.KeyError, err.Error()))
				path = r.URL.Path // If the route does not define a path, use the URL path.
			}
		} else {
			path = r.URL.Path // If the route is nil, use the URL path.
		}

		defer func() {
			// Run the deferred function after the request has been handled, as the status code will not be available until then.
			HttpTotalRequests.WithLabelValues(path, r.Method, fmt.Sprintf("%d", cw.StatusCode())).Inc()
			HttpRequestDuration.WithLabelValues(path, r.Method, fmt.Sprintf("%d", cw.StatusCode())).Observe(time.Since(now).Seconds())
		}()

		handler(cw, r)
	}
}

// interactionHandler is the single gateway entry point for interactions.
// It routes by interaction type, applies the component rate limit, and
// turns processor errors into a generic ephemeral apology so the user is
// never left with a spinner.
func interactionHandler(a IApp, tables *dispatchTables) func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		defer func() {
			if rec := recover(); rec != nil {
				a.Log().Error("Panic in interaction handler",
					slog.String(logging.KeyError, fmt.Sprintf("%v", rec)),
					slog.String("stack", string(debug.Stack())),
				)
				if err := respondSlashError(a, i); err != nil {
					a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
				}
			}
		}()

		// Everything the bot does is guild scoped.
		if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
			return
		}

		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			handleSlashCommand(a, i, tables.commands)
		case discordgo.InteractionMessageComponent:
			handleComponent(a, i, tables)
		case discordgo.InteractionModalSubmit:
			handleModalSubmit(a, i, tables.modals)
		}
	}
}

func handleSlashCommand(a IApp, i *discordgo.InteractionCreate, commands map[string]commandProcessor) {
	name := i.ApplicationCommandData().Name
	a.Log().Debug("Handling slash command", slog.String(logging.KeyHandler, name))

	t := time.Now()
	defer func() {
		DiscordCommandDuration.WithLabelValues(name).Observe(time.Since(t).Seconds())
	}()

	res := a.Limiter().Check(context.Background(), ratelimit.SlashKey(name, i.Member.User.ID))
	if !res.Allowed {
		if err := respondEphemeral(a, i, rateLimitedMessage(res)); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
		return
	}

	processor, ok := commands[name]
	if !ok {
		a.Log().Error("No processor found for command", slog.String(logging.KeyHandler, name))
		if err := respondSlashError(a, i); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
		return
	}

	if err := processor(a, i); err != nil {
		a.Log().Error("Error processing command",
			slog.String(logging.KeyHandler, name),
			slog.String(logging.KeyError, err.Error()),
			slog.String(logging.KeyGuild, i.GuildID),
			slog.String(logging.KeyUser, i.Member.User.ID),
		)
		if err := respondSlashError(a, i); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
	}
}

func handleComponent(a IApp, i *discordgo.InteractionCreate, tables *dispatchTables) {
	customID := i.MessageComponentData().CustomID
	a.Log().Debug("Handling component", slog.String(logging.KeyHandler, customID))

	res := a.Limiter().Check(context.Background(), ratelimit.ComponentKey(customID, i.Member.User.ID))
	if !res.Allowed {
		if err := respondEphemeral(a, i, rateLimitedMessage(res)); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
		return
	}

	processor, ok := tables.buttons[customID]
	if !ok {
		processor, ok = tables.selects[customID]
	}
	if !ok {
		// Stale controls from messages posted by an older deployment.
		a.Log().Warn("No processor found for component", slog.String(logging.KeyHandler, customID))
		if err := respondEphemeral(a, i, messages.ErrNotConfigured); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
		return
	}

	if err := processor(a, i); err != nil {
		a.Log().Error("Error processing component",
			slog.String(logging.KeyHandler, customID),
			slog.String(logging.KeyError, err.Error()),
			slog.String(logging.KeyGuild, i.GuildID),
			slog.String(logging.KeyUser, i.Member.User.ID),
		)
		if err := respondSlashError(a, i); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
	}
}

func handleModalSubmit(a IApp, i *discordgo.InteractionCreate, modals map[string]commandProcessor) {
	customID := i.ModalSubmitData().CustomID
	a.Log().Debug("Handling modal submit", slog.String(logging.KeyHandler, customID))

	processor, ok := modals[customID]
	if !ok {
		// A submit for a modal this deployment never presented. Nothing
		// sensible to tell the user.
		a.Log().Warn("No processor found for modal", slog.String(logging.KeyHandler, customID))
		return
	}

	if err := processor(a, i); err != nil {
		a.Log().Error("Error processing modal",
			slog.String(logging.KeyHandler, customID),
			slog.String(logging.KeyError, err.Error()),
			slog.String(logging.KeyGuild, i.GuildID),
			slog.String(logging.KeyUser, i.Member.User.ID),
		)
		if err := respondSlashError(a, i); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
	}
}

func rateLimitedMessage(res ratelimit.Result) string {
	secs := int(res.RetryAfter.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf(messages.ErrRateLimited, secs)
}

// modalTextValue pulls the value of a text input out of a modal submit by
// custom ID.
func modalTextValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range ar.Components {
			input, ok := comp.(*discordgo.TextInput)
			if !ok {
				continue
			}
			if input.CustomID == customID {
				return strings.TrimSpace(input.Value)
			}
		}
	}
	return ""
}
