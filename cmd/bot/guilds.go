package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/unity-vault/vaultbot/pkg/logging"
)

func guildJoinedHandler(a IApp) func(s *discordgo.Session, g *discordgo.GuildCreate) {
	return func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		a.Log().Info(fmt.Sprintf("Joined guild %s", g.Name))

		// Increment the total number of guilds.
		TotalDiscordGuilds.Inc()

		// Make sure a config row exists so staff see sane defaults on the
		// first /config view.
		if _, err := a.GuildDal().GetOrCreateGuild(context.Background(), g.ID); err != nil {
			a.Log().Error("Error creating guild configuration",
				slog.String(logging.KeyError, err.Error()),
				slog.String(logging.KeyGuild, g.ID),
			)
		}
	}
}

func guildLeaveHandler(a IApp) func(s *discordgo.Session, g *discordgo.GuildDelete) {
	return func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		a.Log().Info(fmt.Sprintf("Left guild %s", g.ID))

		// Decrement the total number of guilds.
		TotalDiscordGuilds.Dec()
	}
}

// guildMemberAddHandler welcomes new members and points them at the ticket
// system. Delivery is best effort: onboarding never interferes with the
// rest of the bot.
func guildMemberAddHandler(a IApp) func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	return func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		guild, err := a.GuildDal().GetOrCreateGuild(context.Background(), m.GuildID)
		if err != nil {
			a.Log().Error("Error getting guild configuration",
				slog.String(logging.KeyError, err.Error()),
				slog.String(logging.KeyGuild, m.GuildID),
			)
			return
		}

		channelID := guild.OnboardingChannelID
		if channelID == "" {
			channelID = a.Config().DefaultOnboardingChannelID
		}
		if channelID == "" {
			return
		}

		msg := fmt.Sprintf("Welcome <@%s>! If you need anything from the team, open a ticket from the ticket panel.", m.User.ID)
		if _, err := a.Session().ChannelMessageSend(channelID, msg); err != nil {
			a.Log().Warn("Error sending welcome message",
				slog.String(logging.KeyError, err.Error()),
				slog.String(logging.KeyGuild, m.GuildID),
			)
		}
	}
}
