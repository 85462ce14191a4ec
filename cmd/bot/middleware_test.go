package main

import (
	"testing"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/unity-vault/vaultbot/pkg/ratelimit"
)

func TestModalTextValue(t *testing.T) {
	data := discordgo.ModalSubmitInteractionData{
		CustomID: "modal:ticket:support",
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					&discordgo.TextInput{
						CustomID: modalSubjectID,
						Value:    "  Cannot join voice  ",
					},
				},
			},
			&discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					&discordgo.TextInput{
						CustomID: modalDescriptionID,
						Value:    "It kicks me out every time.",
					},
				},
			},
		},
	}

	assert.Equal(t, "Cannot join voice", modalTextValue(data, modalSubjectID))
	assert.Equal(t, "It kicks me out every time.", modalTextValue(data, modalDescriptionID))
	assert.Empty(t, modalTextValue(data, "missing"))
}

func TestRateLimitedMessage(t *testing.T) {
	assert.Equal(t,
		"You are doing that too fast. Try again in 42 seconds.",
		rateLimitedMessage(ratelimit.Result{RetryAfter: 42 * time.Second}),
	)

	// Sub-second waits still tell the user to wait at least a second.
	assert.Equal(t,
		"You are doing that too fast. Try again in 1 seconds.",
		rateLimitedMessage(ratelimit.Result{RetryAfter: 200 * time.Millisecond}),
	)
}
