// Package permissions decides whether an actor counts as ticket staff.
package permissions

import (
	"errors"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/unity-vault/vaultbot/pkg/entities"
)

// ErrPermissionDenied is returned by RequireTicketPermission. Its text is
// safe to show to the actor.
var ErrPermissionDenied = errors.New("you do not have permission to manage tickets in this server")

// elevatedPermissions is the permission bundle that qualifies an actor as
// staff regardless of role configuration: channel, role and message
// management.
const elevatedPermissions = discordgo.PermissionManageChannels |
	discordgo.PermissionManageRoles |
	discordgo.PermissionManageMessages

// CanManageTickets reports whether the member qualifies as staff: either it
// holds the elevated permission bundle, or it belongs to at least one of the
// guild's configured support roles. An empty support role set never grants
// access on its own.
func CanManageTickets(member *discordgo.Member, guild *entities.Guild) bool {
	if member == nil {
		return false
	}

	if member.Permissions&elevatedPermissions == elevatedPermissions {
		return true
	}

	roles := guild.SupportRoles()
	if len(roles) == 0 {
		return false
	}

	for _, have := range member.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// RequireTicketPermission is the asserting form of CanManageTickets. It
// succeeds silently or fails with ErrPermissionDenied.
func RequireTicketPermission(member *discordgo.Member, guild *entities.Guild) error {
	if !CanManageTickets(member, guild) {
		return ErrPermissionDenied
	}
	return nil
}
