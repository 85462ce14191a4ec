package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/alexliesenfeld/health"
	"github.com/unity-vault/vaultbot/pkg/messages"
)

const (
	// PingCmdName is the connectivity check command.
	PingCmdName = "ping"

	// HelpCmdName is the command listing what the bot can do.
	HelpCmdName = "help"

	// StatusCmdName is the command reporting bot health to staff.
	StatusCmdName = "status"

	// ConfigCmdName is the per-guild configuration command.
	ConfigCmdName = "config"

	// TicketPanelCmdName posts the ticket panel into the current channel.
	TicketPanelCmdName = "ticket-panel"
)

const (
	// ConfigViewSubCmd shows the current guild configuration.
	ConfigViewSubCmd = "view"

	// ConfigSetSubCmd updates one guild configuration value.
	ConfigSetSubCmd = "set"
)

// Config keys accepted by /config set.
const (
	ConfigKeyLogChannel        = "log_channel"
	ConfigKeyTicketCategory    = "ticket_category"
	ConfigKeySupportRoles      = "support_roles"
	ConfigKeyOnboardingChannel = "onboarding_channel"
)

// slashCommands is every command registered per guild at startup.
var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        PingCmdName,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Check that the bot is responding.",
	},
	{
		Name:        HelpCmdName,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Show what the bot can do.",
	},
	{
		Name:        StatusCmdName,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Show bot uptime and connectivity. Staff only.",
	},
	{
		Name:        ConfigCmdName,
		Type:        discordgo.ChatApplicationCommand,
		Description: "View or change the ticket configuration for this server. Staff only.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        ConfigViewSubCmd,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Show the current configuration.",
			},
			{
				Name:        ConfigSetSubCmd,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Set a configuration value.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "key",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "The configuration key to set.",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "Audit log channel", Value: ConfigKeyLogChannel},
							{Name: "Ticket category", Value: ConfigKeyTicketCategory},
							{Name: "Support roles (comma separated IDs)", Value: ConfigKeySupportRoles},
							{Name: "Onboarding channel", Value: ConfigKeyOnboardingChannel},
						},
					},
					{
						Name:        "value",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "The value to set. Channel or role IDs.",
						Required:    true,
					},
				},
			},
		},
	},
	{
		Name:        TicketPanelCmdName,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Post the open-a-ticket panel in this channel. Staff only.",
	},
}

func pingHandler(a IApp, i *discordgo.InteractionCreate) error {
	latency := a.Session().HeartbeatLatency().Round(time.Millisecond)
	return respondEphemeral(a, i, fmt.Sprintf("Pong! Gateway latency is %s.", latency))
}

func helpHandler(a IApp, i *discordgo.InteractionCreate) error {
	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{
				{
					Title: "Support tickets",
					Description: "Open a ticket from the ticket panel and a private channel " +
						"will be created for you and the support team.",
					Color: 0x5865f2,
					Fields: []*discordgo.MessageEmbedField{
						{
							Name:  "/ping",
							Value: "Check that the bot is responding.",
						},
						{
							Name:  "/status",
							Value: "Bot uptime and connectivity. Staff only.",
						},
						{
							Name:  "/config",
							Value: "View or change the ticket configuration. Staff only.",
						},
						{
							Name:  "/ticket-panel",
							Value: "Post the open-a-ticket panel. Staff only.",
						},
					},
				},
			},
		},
	})
}

func statusHandler(a IApp, i *discordgo.InteractionCreate) error {
	ctx := context.Background()

	staff, err := isStaff(ctx, a, i)
	if err != nil {
		return fmt.Errorf("error checking staff capability: %w", err)
	}
	if !staff {
		return respondEphemeral(a, i, messages.ErrPermissionDenied)
	}

	// The same checker backs /health, so the command and the endpoint can
	// never disagree.
	res := a.Health().Check(ctx)

	guilds, err := a.GetJoinedGuilds()
	if err != nil {
		return fmt.Errorf("error getting guilds: %w", err)
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{
				statusEmbed(a.Uptime(), a.Session().HeartbeatLatency(), res.Status, len(guilds)),
			},
		},
	})
}

// statusEmbed renders the /status report. Anything other than an "up"
// checker verdict turns the embed red.
func statusEmbed(uptime, latency time.Duration, status health.AvailabilityStatus, guilds int) *discordgo.MessageEmbed {
	color := 0x57f287
	if status != health.StatusUp {
		color = 0xed4245
	}

	return &discordgo.MessageEmbed{
		Title: "Bot status",
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Uptime",
				Value:  uptime.Round(time.Second).String(),
				Inline: true,
			},
			{
				Name:   "Gateway latency",
				Value:  latency.Round(time.Millisecond).String(),
				Inline: true,
			},
			{
				Name:   "Health",
				Value:  string(status),
				Inline: true,
			},
			{
				Name:   "Guilds",
				Value:  fmt.Sprintf("%d", guilds),
				Inline: true,
			},
		},
	}
}

func configHandler(a IApp, i *discordgo.InteractionCreate) error {
	ctx := context.Background()

	staff, err := isStaff(ctx, a, i)
	if err != nil {
		return fmt.Errorf("error checking staff capability: %w", err)
	}
	if !staff {
		return respondEphemeral(a, i, messages.ErrPermissionDenied)
	}

	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		return respondSlashError(a, i)
	}

	switch opts[0].Name {
	case ConfigViewSubCmd:
		return configViewHandler(ctx, a, i)
	case ConfigSetSubCmd:
		return configSetHandler(ctx, a, i, opts[0].Options)
	default:
		return fmt.Errorf("unknown config sub command %s", opts[0].Name)
	}
}

func configViewHandler(ctx context.Context, a IApp, i *discordgo.InteractionCreate) error {
	guild, err := a.GuildDal().GetOrCreateGuild(ctx, i.GuildID)
	if err != nil {
		return fmt.Errorf("error getting guild configuration: %w", err)
	}

	channelValue := func(id string) string {
		if id == "" {
			return "not set"
		}
		return fmt.Sprintf("<#%s>", id)
	}

	roles := guild.SupportRoles()
	rolesValue := "not set"
	if len(roles) > 0 {
		mentions := make([]string, 0, len(roles))
		for _, r := range roles {
			mentions = append(mentions, fmt.Sprintf("<@&%s>", r))
		}
		rolesValue = strings.Join(mentions, " ")
	}

	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{
				{
					Title: "Ticket configuration",
					Color: 0x5865f2,
					Fields: []*discordgo.MessageEmbedField{
						{
							Name:  "Audit log channel",
							Value: channelValue(guild.LogChannelID),
						},
						{
							Name:  "Ticket category",
							Value: channelValue(guild.TicketCategoryID),
						},
						{
							Name:  "Support roles",
							Value: rolesValue,
						},
						{
							Name:  "Onboarding channel",
							Value: channelValue(guild.OnboardingChannelID),
						},
					},
				},
			},
		},
	})
}

func configSetHandler(ctx context.Context, a IApp, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) error {
	var key, value string
	for _, opt := range opts {
		switch opt.Name {
		case "key":
			key = opt.StringValue()
		case "value":
			value = strings.TrimSpace(opt.StringValue())
		}
	}

	guild, err := a.GuildDal().GetOrCreateGuild(ctx, i.GuildID)
	if err != nil {
		return fmt.Errorf("error getting guild configuration: %w", err)
	}

	switch key {
	case ConfigKeyLogChannel:
		guild.LogChannelID = value
	case ConfigKeyTicketCategory:
		guild.TicketCategoryID = value
	case ConfigKeySupportRoles:
		guild.SetSupportRoles(splitRoleList(value))
	case ConfigKeyOnboardingChannel:
		guild.OnboardingChannelID = value
	default:
		return respondEphemeral(a, i, fmt.Sprintf("Unknown configuration key `%s`.", key))
	}

	if err := a.GuildDal().SaveSettings(ctx, guild); err != nil {
		return fmt.Errorf("error saving guild configuration: %w", err)
	}

	return respondEphemeral(a, i, fmt.Sprintf("Configuration updated: `%s` set.", key))
}

// splitRoleList parses the raw /config value for support roles. Accepts
// comma separated role IDs or role mentions.
func splitRoleList(raw string) []string {
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "<@&")
		p = strings.TrimSuffix(p, ">")
		if p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}

func ticketPanelHandler(a IApp, i *discordgo.InteractionCreate) error {
	ctx := context.Background()

	staff, err := isStaff(ctx, a, i)
	if err != nil {
		return fmt.Errorf("error checking staff capability: %w", err)
	}
	if !staff {
		return respondEphemeral(a, i, messages.ErrPermissionDenied)
	}

	if _, err := a.Session().ChannelMessageSendComplex(i.ChannelID, ticketPanelMessage()); err != nil {
		return fmt.Errorf("error sending ticket panel: %w", err)
	}

	return respondEphemeral(a, i, messages.TicketPanelPosted)
}
