package dataaccess

import "errors"

const (
	// mongoDatabase is the database that all collections live in.
	mongoDatabase = "vaultbot"

	collectionGuilds           = "guilds"
	collectionTickets          = "tickets"
	collectionInteractionState = "interaction_state"
	collectionRateLimits       = "rate_limits"
)

// ErrNotFound is returned by lookups when no matching document exists. DALs
// map the driver's no-documents error onto it so that callers do not need to
// import the mongo driver.
var ErrNotFound = errors.New("not found")
