package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicScreenApprovesNormalChat(t *testing.T) {
	s := heuristicScreen("Hey! How was your trek to Poon Hill? I loved the photos.")
	assert.True(t, s.Safe)
	assert.Equal(t, VerdictApprove, s.Verdict)
	assert.Empty(t, s.Reasons)
}

func TestHeuristicScreenFlagsContactSharing(t *testing.T) {
	s := heuristicScreen("add me on whatsapp instead")
	assert.False(t, s.Safe)
	assert.NotEqual(t, VerdictApprove, s.Verdict)
	assert.Contains(t, s.Reasons, "moves conversation off platform")
}

func TestHeuristicScreenBlocksPhoneNumbers(t *testing.T) {
	for _, msg := range []string{
		"call me at 9841234567",
		"my number is +9779841234567",
	} {
		s := heuristicScreen(msg)
		assert.False(t, s.Safe, msg)
		assert.Contains(t, s.Reasons, "shares phone number")
	}
}

func TestHeuristicScreenEscalatesScamPlaybook(t *testing.T) {
	s := heuristicScreen("i love you, please transfer money to my bank account, call 9841234567")
	assert.Equal(t, VerdictEscalate, s.Verdict)
	assert.Equal(t, "critical", s.Severity)
	assert.False(t, s.Safe)
}

func TestHeuristicScreenFlagsEarlyILoveYou(t *testing.T) {
	s := heuristicScreen("i love you already, you are my destiny")
	assert.NotEqual(t, VerdictApprove, s.Verdict)
	assert.Contains(t, s.Reasons, "premature emotional escalation")
}

func TestSafetyAgentProcessWithoutLLM(t *testing.T) {
	a := NewSafetyAgent(nil)
	out, err := a.Process(context.Background(), Task{
		Action:  "check_message",
		UserID:  "u1",
		Payload: map[string]any{"content": "visit www.win-money.example now"},
	})
	require.NoError(t, err)
	assert.Equal(t, false, out.Data["safe"])
	assert.Equal(t, 0, out.TokensUsed)

	_, err = a.Process(context.Background(), Task{Action: "check_message", Payload: map[string]any{"content": "  "}})
	assert.Error(t, err)
}
