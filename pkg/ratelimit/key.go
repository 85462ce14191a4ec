package ratelimit

import "fmt"

// Kind is the action being rate limited. Each kind carries its own
// statically configured (limit, window) pair.
type Kind int

const (
	// KindSlashCommand is a slash command invocation, scoped by command name
	// and actor.
	KindSlashCommand Kind = iota

	// KindTicketCreate is a ticket creation attempt, scoped by guild and
	// actor.
	KindTicketCreate

	// KindComponent is a generic UI component interaction, scoped by the
	// component custom ID and actor.
	KindComponent
)

// Key identifies one rate limit counter. Scope is the command name for slash
// commands, the guild ID for ticket creation and the custom ID for
// components.
type Key struct {
	Kind   Kind
	Scope  string
	UserID string
}

// SlashKey builds the key for a slash command invocation.
func SlashKey(commandName, userID string) Key {
	return Key{Kind: KindSlashCommand, Scope: commandName, UserID: userID}
}

// TicketCreateKey builds the key for a ticket creation attempt.
func TicketCreateKey(guildID, userID string) Key {
	return Key{Kind: KindTicketCreate, Scope: guildID, UserID: userID}
}

// ComponentKey builds the key for a UI component interaction.
func ComponentKey(customID, userID string) Key {
	return Key{Kind: KindComponent, Scope: customID, UserID: userID}
}

// String renders the composite storage key.
func (k Key) String() string {
	switch k.Kind {
	case KindSlashCommand:
		return fmt.Sprintf("slash:%s:%s", k.Scope, k.UserID)
	case KindTicketCreate:
		return fmt.Sprintf("ticket:create:%s:%s", k.Scope, k.UserID)
	case KindComponent:
		return fmt.Sprintf("btn:%s:%s", k.Scope, k.UserID)
	default:
		return fmt.Sprintf("unknown:%s:%s", k.Scope, k.UserID)
	}
}
