package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unity-vault/vaultbot/pkg/dataaccess"
	"github.com/unity-vault/vaultbot/pkg/entities"
	"github.com/unity-vault/vaultbot/pkg/logging"
	"github.com/unity-vault/vaultbot/pkg/messages"
	"github.com/unity-vault/vaultbot/pkg/ticketing"
)

func TestModalID(t *testing.T) {
	assert.Equal(t, "modal:ticket:support", modalID(entities.TicketTypeSupport))
	assert.Equal(t, "modal:ticket:report", modalID(entities.TicketTypeReport))
}

func TestStateCustomID_ScopedPerUser(t *testing.T) {
	a := stateCustomID(entities.TicketTypeSupport, "user-1")
	b := stateCustomID(entities.TicketTypeSupport, "user-2")

	assert.Equal(t, "modal:ticket:support:user-1", a)
	assert.NotEqual(t, a, b)
}

func TestModalHandlers_CoversEveryType(t *testing.T) {
	handlers := modalHandlers()

	require.Len(t, handlers, len(entities.TicketTypes))
	for _, typ := range entities.TicketTypes {
		assert.Contains(t, handlers, modalID(typ))
	}
}

func TestSplitRoleList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "plain ids",
			raw:  "123,456",
			want: []string{"123", "456"},
		},
		{
			name: "mentions and whitespace",
			raw:  "<@&123>, <@&456> ,789",
			want: []string{"123", "456", "789"},
		},
		{
			name: "empty entries dropped",
			raw:  ",123,,",
			want: []string{"123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitRoleList(tt.raw))
		})
	}
}

func TestOpenErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation carries its own wording",
			err:  &ticketing.ValidationError{Field: "subject", Message: "Subject is required."},
			want: "Subject is required.",
		},
		{
			name: "rate limited rounds up to a second",
			err:  &ticketing.RateLimitError{RetryAfter: 300 * time.Millisecond},
			want: "You are doing that too fast. Try again in 1 seconds.",
		},
		{
			name: "cap reached",
			err:  &ticketing.TooManyOpenError{Count: 2},
			want: "You already have 2 open tickets. Please close one before opening another.",
		},
		{
			name: "anything else is the generic apology",
			err:  assert.AnError,
			want: messages.ErrUserErrorProcessing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, openErrorMessage(tt.err))
		})
	}
}

// fakeStates is an in-memory StateDal keyed by custom ID.
type fakeStates struct {
	rows      map[string]*entities.InteractionState
	deleteErr error
	deleted   []string
}

func newFakeStates() *fakeStates {
	return &fakeStates{rows: make(map[string]*entities.InteractionState)}
}

func (f *fakeStates) PutState(_ context.Context, s *entities.InteractionState) error {
	f.rows[s.CustomID] = s
	return nil
}

func (f *fakeStates) LatestState(_ context.Context, customID string, now time.Time) (*entities.InteractionState, error) {
	s, ok := f.rows[customID]
	if !ok || s.Expired(now) {
		return nil, dataaccess.ErrNotFound
	}
	return s, nil
}

func (f *fakeStates) DeleteState(_ context.Context, customID string) error {
	f.deleted = append(f.deleted, customID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.rows, customID)
	return nil
}

func (f *fakeStates) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func TestClearTicketState_ConsumesTheRow(t *testing.T) {
	l, err := logging.CommonLogger(logging.NewConfig(`tests`))
	require.NoError(t, err)

	states := newFakeStates()
	now := time.Now().UTC()
	require.NoError(t, states.PutState(context.Background(), &entities.InteractionState{
		CustomID:  stateCustomID(entities.TicketTypeSupport, "user-1"),
		Payload:   `{"type":"support"}`,
		CreatedAt: now,
		ExpiresAt: now.Add(stateTTL),
	}))

	clearTicketState(context.Background(), l, states, entities.TicketTypeSupport, "user-1")

	// The row is gone well before its TTL, so a replayed submit finds
	// nothing.
	_, err = states.LatestState(context.Background(), stateCustomID(entities.TicketTypeSupport, "user-1"), now)
	assert.ErrorIs(t, err, dataaccess.ErrNotFound)
	assert.Equal(t, []string{"modal:ticket:support:user-1"}, states.deleted)
}

func TestClearTicketState_DeleteFailureIsSwallowed(t *testing.T) {
	l, err := logging.CommonLogger(logging.NewConfig(`tests`))
	require.NoError(t, err)

	states := newFakeStates()
	states.deleteErr = errors.New("connection reset")

	// Best effort: the TTL sweep picks up what the delete could not.
	clearTicketState(context.Background(), l, states, entities.TicketTypeReport, "user-1")
	assert.Equal(t, []string{"modal:ticket:report:user-1"}, states.deleted)
}

func TestAuditEmbed(t *testing.T) {
	created := auditEmbed(ticketing.TicketCreated{
		ChannelID: "chan-1",
		UserID:    "user-1",
		Username:  "somebody",
		Type:      entities.TicketTypeSupport,
		Number:    7,
	})
	assert.Equal(t, "Ticket #7 opened", created.Title)
	assert.Equal(t, 0x57f287, created.Color)
	require.Len(t, created.Fields, 3)

	closed := auditEmbed(ticketing.TicketClosed{ChannelID: "chan-1", ClosedBy: "user-2", Number: 7})
	assert.Equal(t, "Ticket #7 closed", closed.Title)
	assert.Equal(t, 0xed4245, closed.Color)

	escalated := auditEmbed(ticketing.TicketEscalated{ChannelID: "chan-1", EscalatedBy: "user-2", Number: 7})
	assert.Equal(t, 0xeb459e, escalated.Color)

	reopened := auditEmbed(ticketing.TicketReopened{ChannelID: "chan-1", ReopenedBy: "user-1", Number: 7})
	assert.Equal(t, 0xfee75c, reopened.Color)
}
