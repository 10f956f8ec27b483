// Package translate implements bidirectional translation between the
// legacy SAM A2A dialect (tasks/send, tasks/sendSubscribe, Part.type,
// mimeType) and the modern dialect (message/send, message/stream,
// Part.kind, mime_type, explicit MessageSendConfiguration/MessageSendParams).
//
// Outbound (modern→legacy) translation operates on a generic
// map[string]any JSON tree rather than typed structs, because the
// rewrite is a small set of field renames/deletions applied uniformly
// across three event shapes (Task, TaskStatusUpdateEvent,
// TaskArtifactUpdateEvent) and their nested parts — a structural copy
// would just reimplement the same renames three times over.
package translate

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// methodMap maps legacy methods to their modern equivalents. tasks/cancel
// is compatible between dialects and is not listed here; it is passed
// through with direct validation instead.
var methodMap = map[string]string{
	types.MethodLegacyTasksSend:          types.MethodModernMessageSend,
	types.MethodLegacyTasksSendSubscribe: types.MethodModernMessageStream,
}

// InboundResult is the modern-dialect request produced by translating a
// legacy envelope. Exactly one of Params/CancelParams is populated,
// matching Method.
type InboundResult struct {
	Method       string
	EnvelopeID   types.JSONRPCRequestID
	Params       *types.MessageSendParams
	CancelParams *types.CancelTaskParams
}

// TranslateInbound translates a legacy SAM A2A request payload into the
// modern dialect. isNewTask must be true when this is the first submission
// for a task, which nils out the modern message's TaskID (spec.md §4.2).
func TranslateInbound(legacy *types.Request, isNewTask bool) (*InboundResult, error) {
	modernMethod, ok := methodMap[legacy.Method]
	if !ok {
		switch legacy.Method {
		case types.MethodLegacyTasksCancel, types.MethodModernTasksCancel:
			var params types.CancelTaskParams
			if err := json.Unmarshal(legacy.Params, &params); err != nil {
				return nil, sameerrors.New(sameerrors.ProtocolError, "translate", "inbound-cancel", err)
			}
			return &InboundResult{
				Method:       types.MethodModernTasksCancel,
				EnvelopeID:   legacy.ID,
				CancelParams: &params,
			}, nil
		case types.MethodModernMessageSend, types.MethodModernMessageStream:
			// Already modern: every proxy request passes through this
			// translator unconditionally (spec.md §4.4 dispatch step 3), so a
			// request that arrives already in the modern dialect is returned
			// unchanged rather than rejected.
			var params types.MessageSendParams
			if err := json.Unmarshal(legacy.Params, &params); err != nil {
				return nil, sameerrors.New(sameerrors.ProtocolError, "translate", "inbound-passthrough", err)
			}
			return &InboundResult{
				Method:     legacy.Method,
				EnvelopeID: legacy.ID,
				Params:     &params,
			}, nil
		default:
			return nil, sameerrors.New(sameerrors.ProtocolError, "translate", "inbound",
				fmt.Errorf("unknown or untranslatable legacy method: %s", legacy.Method))
		}
	}

	var legacyParams types.LegacyTaskSendParams
	if err := json.Unmarshal(legacy.Params, &legacyParams); err != nil {
		return nil, sameerrors.New(sameerrors.ProtocolError, "translate", "inbound-params", err)
	}

	var taskID *types.LogicalTaskID
	if !isNewTask && legacyParams.ID != "" {
		id := types.LogicalTaskID(legacyParams.ID)
		taskID = &id
	}

	parts := make([]types.Part, 0, len(legacyParams.Message.Parts))
	for _, lp := range legacyParams.Message.Parts {
		parts = append(parts, legacyPartToPart(lp))
	}

	modernMessage := types.Message{
		Role:      types.Role(legacyParams.Message.Role),
		Parts:     parts,
		MessageID: uuid.NewString(),
		ContextID: types.SessionID(legacyParams.SessionID),
		TaskID:    taskID,
		Metadata:  legacyParams.Message.Metadata,
	}

	config := types.MessageSendConfiguration{
		PushNotificationConfig: legacyParams.PushNotification,
		HistoryLength:          legacyParams.HistoryLength,
		// Legacy SAM protocol implies blocking behavior.
		Blocking: true,
	}

	return &InboundResult{
		Method:     modernMethod,
		EnvelopeID: legacy.ID,
		Params: &types.MessageSendParams{
			Message:       modernMessage,
			Configuration: config,
			Metadata:      legacyParams.Metadata,
		},
	}, nil
}

func legacyPartToPart(lp types.LegacyPart) types.Part {
	switch lp.Type {
	case "text":
		return types.NewTextPart(lp.Text)
	case "file":
		return types.NewFilePart(types.FileContent{
			MimeType: lp.MimeType,
			Bytes:    lp.Bytes,
			URI:      lp.URI,
		})
	case "data":
		return types.Part{Kind: types.PartKindData, Data: lp.Data}
	default:
		return types.Part{Kind: types.PartKind(lp.Type), Text: lp.Text}
	}
}

// TranslateOutboundEvent translates a modern dialect event (Task,
// TaskStatusUpdateEvent, or TaskArtifactUpdateEvent) into the legacy
// wire shape. Unknown event types pass through unchanged with no error
// (the caller is expected to log a warning).
func TranslateOutboundEvent(event any) (map[string]any, error) {
	switch e := event.(type) {
	case *types.Task:
		return translateTask(e)
	case types.Task:
		return translateTask(&e)
	case *types.TaskStatusUpdateEvent:
		return translateStatusUpdate(e)
	case types.TaskStatusUpdateEvent:
		return translateStatusUpdate(&e)
	case *types.TaskArtifactUpdateEvent:
		return translateArtifactUpdate(e)
	case types.TaskArtifactUpdateEvent:
		return translateArtifactUpdate(&e)
	default:
		return toMap(event)
	}
}

func translateTask(t *types.Task) (map[string]any, error) {
	m, err := toMap(t)
	if err != nil {
		return nil, err
	}
	if ctxID, ok := m["contextId"]; ok {
		m["sessionId"] = ctxID
		delete(m, "contextId")
	}
	if status, ok := m["status"].(map[string]any); ok {
		if message, ok := status["message"].(map[string]any); ok {
			if parts, ok := message["parts"].([]any); ok {
				message["parts"] = translatePartsToLegacy(parts)
			}
		}
	}
	if history, ok := m["history"].([]any); ok {
		for _, item := range history {
			msg, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if parts, ok := msg["parts"].([]any); ok {
				msg["parts"] = translatePartsToLegacy(parts)
			}
		}
	}
	return m, nil
}

func translateStatusUpdate(e *types.TaskStatusUpdateEvent) (map[string]any, error) {
	m, err := toMap(e)
	if err != nil {
		return nil, err
	}
	if taskID, ok := m["taskId"]; ok {
		m["id"] = taskID
		delete(m, "taskId")
	}
	delete(m, "contextId") // no equivalent in legacy event
	if status, ok := m["status"].(map[string]any); ok {
		if message, ok := status["message"].(map[string]any); ok {
			if parts, ok := message["parts"].([]any); ok {
				message["parts"] = translatePartsToLegacy(parts)
			}
		}
	}
	return m, nil
}

func translateArtifactUpdate(e *types.TaskArtifactUpdateEvent) (map[string]any, error) {
	m, err := toMap(e)
	if err != nil {
		return nil, err
	}
	if taskID, ok := m["taskId"]; ok {
		m["id"] = taskID
		delete(m, "taskId")
	}
	delete(m, "contextId") // no equivalent in legacy event
	if artifact, ok := m["artifact"].(map[string]any); ok {
		if parts, ok := artifact["parts"].([]any); ok {
			artifact["parts"] = translatePartsToLegacy(parts)
		}
	}
	return m, nil
}

// translatePartsToLegacy renames kind->type and, for file parts, flattens
// the modern dialect's nested {file:{name, mime_type, bytes, uri}} object
// into the legacy dialect's flat part shape (type/mimeType/bytes/uri
// directly on the part, jsonrpc.go's LegacyPart), since legacy parts never
// nest file content. Unknown shapes pass through.
func translatePartsToLegacy(parts []any) []any {
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			out = append(out, p)
			continue
		}
		translated := make(map[string]any, len(part))
		for k, v := range part {
			translated[k] = v
		}
		if kind, ok := translated["kind"]; ok {
			translated["type"] = kind
			delete(translated, "kind")
		}
		if translated["type"] == "file" {
			if file, ok := translated["file"].(map[string]any); ok {
				if mt, ok := file["mime_type"]; ok {
					translated["mimeType"] = mt
				}
				if b, ok := file["bytes"]; ok {
					translated["bytes"] = b
				}
				if uri, ok := file["uri"]; ok {
					translated["uri"] = uri
				}
				delete(translated, "file")
			}
		}
		out = append(out, translated)
	}
	return out
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, sameerrors.New(sameerrors.InternalError, "translate", "marshal", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, sameerrors.New(sameerrors.InternalError, "translate", "unmarshal", err)
	}
	return m, nil
}
