package permissions

import (
	"testing"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/unity-vault/vaultbot/pkg/entities"
	"github.com/stretchr/testify/require"
)

func TestCanManageTickets(t *testing.T) {
	tests := []struct {
		name   string
		member *discordgo.Member
		guild  *entities.Guild
		want   bool
	}{
		{
			name:   "NilMember",
			member: nil,
			guild:  &entities.Guild{ID: "g1"},
			want:   false,
		},
		{
			name: "ElevatedPermissions",
			member: &discordgo.Member{
				Permissions: discordgo.PermissionManageChannels |
					discordgo.PermissionManageRoles |
					discordgo.PermissionManageMessages,
			},
			guild: &entities.Guild{ID: "g1"},
			want:  true,
		},
		{
			name: "PartialPermissionsNotEnough",
			member: &discordgo.Member{
				Permissions: discordgo.PermissionManageChannels,
			},
			guild: &entities.Guild{ID: "g1"},
			want:  false,
		},
		{
			name: "SupportRoleMember",
			member: &discordgo.Member{
				Roles: []string{"111", "222"},
			},
			guild: &entities.Guild{ID: "g1", SupportRoleIDs: "222,333"},
			want:  true,
		},
		{
			name: "NoConfiguredRolesNeverGrants",
			member: &discordgo.Member{
				Roles: []string{"111", "222"},
			},
			guild: &entities.Guild{ID: "g1"},
			want:  false,
		},
		{
			name: "WrongRoles",
			member: &discordgo.Member{
				Roles: []string{"111"},
			},
			guild: &entities.Guild{ID: "g1", SupportRoleIDs: "222, 333"},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CanManageTickets(tt.member, tt.guild))
		})
	}
}

func TestRequireTicketPermission(t *testing.T) {
	guild := &entities.Guild{ID: "g1", SupportRoleIDs: "222"}

	require.NoError(t, RequireTicketPermission(&discordgo.Member{Roles: []string{"222"}}, guild))

	err := RequireTicketPermission(&discordgo.Member{Roles: []string{"999"}}, guild)
	require.ErrorIs(t, err, ErrPermissionDenied)
}
