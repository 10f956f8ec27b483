package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStateMarshalRoundTrip(t *testing.T) {
	for _, s := range []TaskState{TaskSubmitted, TaskWorking, TaskCompleted, TaskFailed, TaskCanceled, TaskInputRequired} {
		b, err := json.Marshal(s)
		require.NoError(t, err)

		var got TaskState
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, s, got)
	}
}

func TestTaskStateUnmarshalRejectsUnknown(t *testing.T) {
	var s TaskState
	err := json.Unmarshal([]byte(`"bogus"`), &s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid task state")
}

func TestTaskStateIsTerminal(t *testing.T) {
	assert.True(t, TaskCompleted.IsTerminal())
	assert.True(t, TaskFailed.IsTerminal())
	assert.True(t, TaskCanceled.IsTerminal())
	assert.False(t, TaskWorking.IsTerminal())
	assert.False(t, TaskSubmitted.IsTerminal())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(TaskSubmitted, TaskWorking))
	assert.True(t, CanTransition(TaskWorking, TaskCompleted))
	assert.True(t, CanTransition(TaskWorking, TaskInputRequired))
	assert.True(t, CanTransition(TaskInputRequired, TaskWorking))
	assert.False(t, CanTransition(TaskCompleted, TaskWorking))
	assert.False(t, CanTransition(TaskSubmitted, TaskCompleted))
}
