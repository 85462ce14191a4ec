package entities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTicketName(t *testing.T) {
	tk := &Ticket{Number: 42, Username: "wolf", Type: TicketTypeSupport}
	require.Equal(t, "ticket-0042", tk.Name())
	require.Equal(t, "Ticket #42 · support · wolf", tk.Topic())

	tk.Number = 12345
	require.Equal(t, "ticket-12345", tk.Name())
}

func TestTicketStatusActive(t *testing.T) {
	require.True(t, TicketStatusOpen.Active())
	require.True(t, TicketStatusReopened.Active())
	require.True(t, TicketStatusEscalated.Active())
	require.False(t, TicketStatusClosed.Active())
	require.False(t, TicketStatus("bogus").Active())
}

func TestTicketTypeValid(t *testing.T) {
	for _, typ := range TicketTypes {
		require.True(t, typ.Valid())
	}
	require.False(t, TicketType("billing").Valid())
	require.False(t, TicketType("").Valid())
}
