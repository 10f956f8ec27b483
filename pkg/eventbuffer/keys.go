package eventbuffer

import "github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"

func (b *Buffer) eventsKey(taskID types.LogicalTaskID) string {
	return b.prefix + ":events:" + string(taskID)
}

func (b *Buffer) metaKey(taskID types.LogicalTaskID) string {
	return b.prefix + ":taskmeta:" + string(taskID)
}

func (b *Buffer) consumedKey(taskID types.LogicalTaskID) string {
	return b.prefix + ":consumed:" + string(taskID)
}

func (b *Buffer) sessionIndexKey(sessionID types.SessionID) string {
	return b.prefix + ":sessiontasks:" + string(sessionID)
}
