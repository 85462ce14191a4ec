// Package messages holds the user-facing strings that the bot replies with.
// Keeping them in one place stops the handlers drifting apart in tone.
package messages

const (
	// ErrUserErrorProcessing is the generic apology sent when a handler fails
	// unexpectedly. Internal detail is never leaked to the user.
	ErrUserErrorProcessing = `Something went wrong while processing that. Please try again later.`

	// ErrNotConfigured is sent when an interaction arrives with a custom ID
	// that no handler is registered for.
	ErrNotConfigured = `This control is not configured. It may belong to an older version of the bot.`

	// ErrNotATicket is sent when a ticket control is used in a channel that
	// has no ticket record.
	ErrNotATicket = `This channel is not a ticket.`

	// ErrPermissionDenied is sent when the actor lacks staff capability.
	ErrPermissionDenied = `You do not have permission to manage tickets in this server.`

	// ErrCloseDenied is sent when a non-opener non-staff actor tries to close
	// a ticket.
	ErrCloseDenied = `Only the ticket opener or staff can close this ticket.`

	// ErrEscalateDenied is sent when a non-staff actor tries to escalate.
	ErrEscalateDenied = `Only staff can escalate this ticket.`

	// TicketCloseConfirm asks for the second step of the close flow.
	TicketCloseConfirm = `Are you sure you want to close this ticket?`

	// TicketPanelPosted confirms that the ticket panel was sent.
	TicketPanelPosted = `Ticket panel posted.`

	// TicketSelectType prompts the user to pick a ticket type.
	TicketSelectType = `Select a ticket type below:`

	// ErrRateLimited is sent when an actor hits a rate limit. Takes the
	// retry delay in seconds.
	ErrRateLimited = `You are doing that too fast. Try again in %d seconds.`

	// ErrTooManyOpenTickets is sent when the per-user open ticket cap is
	// reached. Takes the cap.
	ErrTooManyOpenTickets = `You already have %d open tickets. Please close one before opening another.`

	// TicketClosed confirms the close transition.
	TicketClosed = `Ticket closed.`

	// TicketEscalated confirms the escalate transition.
	TicketEscalated = `This ticket has been escalated. A staff member will be with you shortly.`
)
