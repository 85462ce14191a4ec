package entities

import "strings"

// Guild is the per-community configuration. It is created lazily the first
// time a guild is looked up and is never deleted.
type Guild struct {
	// ID is the ID of the guild.
	ID string `json:"id" bson:"id"`

	// LogChannelID is the channel that audit log messages are posted to.
	// Empty means no per-guild log channel is configured.
	LogChannelID string `json:"log_channel_id" bson:"log_channel_id"`

	// TicketCategoryID is the category that ticket channels are created under.
	TicketCategoryID string `json:"ticket_category_id" bson:"ticket_category_id"`

	// SupportRoleIDs is the comma-delimited list of role IDs that qualify as
	// staff. Stored as text, parsed on read. Use SupportRoles to read it.
	SupportRoleIDs string `json:"support_role_ids" bson:"support_role_ids"`

	// OnboardingChannelID is the channel that welcome messages are sent to.
	OnboardingChannelID string `json:"onboarding_channel_id" bson:"onboarding_channel_id"`

	// TicketCounter is the monotonically increasing ticket number allocator.
	// It only ever increases; each allocation is unique within the guild.
	TicketCounter int `json:"ticket_counter" bson:"ticket_counter"`
}

// SupportRoles parses the delimited role list. Entries are trimmed and empty
// entries are dropped, so `"123, 456 ,789"` parses to ["123","456","789"].
func (g *Guild) SupportRoles() []string {
	if strings.TrimSpace(g.SupportRoleIDs) == "" {
		return nil
	}

	parts := strings.Split(g.SupportRoleIDs, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}

// SetSupportRoles serializes the role list back to the stored form. A
// non-empty list round-trips without added whitespace.
func (g *Guild) SetSupportRoles(roles []string) {
	g.SupportRoleIDs = strings.Join(roles, ",")
}
