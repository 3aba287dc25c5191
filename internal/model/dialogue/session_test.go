package dialogue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectionlab/voicecall/backend/internal/model/dialogue"
)

func TestNewRequiresPersonaPrompt(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := dialogue.New(prompt)
		require.ErrorIs(t, err, dialogue.ErrConfiguration, "prompt %q", prompt)
	}
}

func TestNewPrimesSystemTurn(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)

	assert.Equal(t, []dialogue.Turn{{Role: dialogue.RoleSystem, Content: "persona-X"}}, session.Snapshot())
	assert.Equal(t, 0, session.TurnCount())
	assert.Equal(t, "persona-X", session.PersonaPrompt())
}

func TestScenarioTwoTurns(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)

	require.NoError(t, session.RecordUserTurn("hey, got a minute?"))
	require.NoError(t, session.RecordAssistantTurn("yeah I guess, what's up"))

	assert.Equal(t, 2, session.TurnCount())
	assert.Equal(t, 1, session.Exchanges())
	assert.Equal(t, []dialogue.Turn{
		{Role: dialogue.RoleSystem, Content: "persona-X"},
		{Role: dialogue.RoleUser, Content: "hey, got a minute?"},
		{Role: dialogue.RoleAssistant, Content: "yeah I guess, what's up"},
	}, session.Snapshot())
}

func TestRecordUserTurnRejectsBlankText(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)

	for _, text := range []string{"", "   "} {
		err := session.RecordUserTurn(text)
		require.ErrorIs(t, err, dialogue.ErrInvalidInput)
		assert.Len(t, session.Snapshot(), 1)
	}
}

func TestRecordAssistantTurnRejectsBlankText(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)
	require.NoError(t, session.RecordUserTurn("hello"))

	require.ErrorIs(t, session.RecordAssistantTurn(" \t"), dialogue.ErrInvalidInput)
	assert.Equal(t, 1, session.TurnCount())
}

func TestConsecutiveUserTurnsRejected(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)

	require.NoError(t, session.RecordUserTurn("first"))
	require.ErrorIs(t, session.RecordUserTurn("second"), dialogue.ErrInvalidInput)

	snapshot := session.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "first", snapshot[1].Content)
}

func TestConsecutiveAssistantTurnsRejected(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)

	require.NoError(t, session.RecordUserTurn("pitch"))
	require.NoError(t, session.RecordAssistantTurn("reply"))
	require.ErrorIs(t, session.RecordAssistantTurn("reply again"), dialogue.ErrInvalidInput)
	assert.Equal(t, 2, session.TurnCount())
}

func TestAssistantCannotSpeakFirst(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)

	require.ErrorIs(t, session.RecordAssistantTurn("you hear me well?"), dialogue.ErrInvalidInput)
	assert.Equal(t, 0, session.TurnCount())
}

func TestInvariantsHoldAcrossMixedSequence(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)

	steps := []struct {
		role dialogue.Role
		text string
	}{
		{dialogue.RoleAssistant, "early"},
		{dialogue.RoleUser, "one"},
		{dialogue.RoleUser, "one again"},
		{dialogue.RoleAssistant, "two"},
		{dialogue.RoleUser, ""},
		{dialogue.RoleUser, "three"},
		{dialogue.RoleAssistant, "four"},
		{dialogue.RoleAssistant, "four again"},
	}

	for _, step := range steps {
		if step.role == dialogue.RoleUser {
			_ = session.RecordUserTurn(step.text)
		} else {
			_ = session.RecordAssistantTurn(step.text)
		}

		snapshot := session.Snapshot()
		require.Equal(t, dialogue.RoleSystem, snapshot[0].Role)
		require.Equal(t, "persona-X", snapshot[0].Content)
		for i := 1; i < len(snapshot); i++ {
			require.NotEqual(t, dialogue.RoleSystem, snapshot[i].Role)
			if i > 1 {
				require.NotEqual(t, snapshot[i-1].Role, snapshot[i].Role)
			}
		}
	}

	assert.Equal(t, 4, session.TurnCount())
}

func TestSnapshotIsSideEffectFree(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)
	require.NoError(t, session.RecordUserTurn("hello"))

	first := session.Snapshot()
	second := session.Snapshot()
	assert.Equal(t, first, second)

	first[0].Content = "tampered"
	first = append(first, dialogue.Turn{Role: dialogue.RoleAssistant, Content: "injected"})
	assert.Equal(t, second, session.Snapshot())
	assert.Len(t, first, 3)
}

func TestPendingDoesNotMutate(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)

	candidate, err := session.Pending("so what's this about?")
	require.NoError(t, err)
	require.Len(t, candidate, 2)
	assert.Equal(t, dialogue.Turn{Role: dialogue.RoleUser, Content: "so what's this about?"}, candidate[1])
	assert.Equal(t, 0, session.TurnCount())

	require.NoError(t, session.RecordUserTurn("so what's this about?"))
	_, err = session.Pending("again")
	require.ErrorIs(t, err, dialogue.ErrInvalidInput)

	_, err = session.Pending("  ")
	require.ErrorIs(t, err, dialogue.ErrInvalidInput)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, dialogue.RoleUser.Valid())
	assert.False(t, dialogue.Role("tool").Valid())
}

func TestRecordExchangeIsAllOrNothing(t *testing.T) {
	session, err := dialogue.New("persona-X")
	require.NoError(t, err)

	require.ErrorIs(t, session.RecordExchange("hello", "   "), dialogue.ErrInvalidInput)
	require.ErrorIs(t, session.RecordExchange("", "reply"), dialogue.ErrInvalidInput)
	assert.Equal(t, 0, session.TurnCount())

	require.NoError(t, session.RecordExchange("hello", "who is this?"))
	assert.Equal(t, []dialogue.Turn{
		{Role: dialogue.RoleSystem, Content: "persona-X"},
		{Role: dialogue.RoleUser, Content: "hello"},
		{Role: dialogue.RoleAssistant, Content: "who is this?"},
	}, session.Snapshot())

	// 交替规则仍然生效：用户话语后不能再追加一组
	require.NoError(t, session.RecordUserTurn("still there?"))
	require.ErrorIs(t, session.RecordExchange("again", "yes"), dialogue.ErrInvalidInput)
	assert.Equal(t, 3, session.TurnCount())
}
