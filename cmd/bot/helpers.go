package main

import (
	"context"
	"fmt"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/unity-vault/vaultbot/pkg/messages"
	"github.com/unity-vault/vaultbot/pkg/permissions"
)

// replySender delivers one ephemeral message across the interaction
// response stages. The platform accepts exactly one initial response per
// interaction: a fresh reply fails once the interaction has been
// acknowledged, an edit only lands on a deferred response, and a follow-up
// message covers an interaction that has already been responded to.
type replySender struct {
	respond  func(content string) error
	edit     func(content string) error
	followup func(content string) error
}

func newReplySender(a IApp, i *discordgo.InteractionCreate) *replySender {
	return &replySender{
		respond: func(content string) error {
			return respondEphemeral(a, i, content)
		},
		edit: func(content string) error {
			_, err := a.Session().InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
				Content: &content,
			})
			return err
		},
		followup: func(content string) error {
			_, err := a.Session().FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			})
			return err
		},
	}
}

// send walks the stages in order until one of them lands, so the user is
// never left on a permanent thinking state whichever stage the handler
// failed in.
func (r *replySender) send(content string) error {
	if err := r.respond(content); err == nil {
		return nil
	}
	if err := r.edit(content); err == nil {
		return nil
	}
	if err := r.followup(content); err != nil {
		return fmt.Errorf("error sending follow-up reply: %w", err)
	}
	return nil
}

func respondSlashError(a IApp, i *discordgo.InteractionCreate) error {
	return newReplySender(a, i).send(messages.ErrUserErrorProcessing)
}

func respondEphemeral(a IApp, i *discordgo.InteractionCreate, content string) error {
	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// deferEphemeral acknowledges the interaction so slow work (channel
// creation, database writes) does not hit the three second response
// deadline. Follow up with editDeferred.
func deferEphemeral(a IApp, i *discordgo.InteractionCreate) error {
	return a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}

func editDeferred(a IApp, i *discordgo.InteractionCreate, content string) error {
	_, err := a.Session().InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		return fmt.Errorf("error editing deferred response: %w", err)
	}
	return nil
}

// interactionMember returns the guild member behind the interaction. DM
// interactions have no member.
func interactionMember(i *discordgo.InteractionCreate) (*discordgo.Member, error) {
	if i.Member == nil || i.Member.User == nil {
		return nil, fmt.Errorf("interaction has no guild member")
	}
	return i.Member, nil
}

// isStaff reports whether the interaction member holds ticket management
// permissions in the guild.
func isStaff(ctx context.Context, a IApp, i *discordgo.InteractionCreate) (bool, error) {
	member, err := interactionMember(i)
	if err != nil {
		return false, err
	}

	guild, err := a.GuildDal().GetOrCreateGuild(ctx, i.GuildID)
	if err != nil {
		return false, fmt.Errorf("error getting guild configuration: %w", err)
	}

	return permissions.CanManageTickets(member, guild), nil
}
