package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/artifact"
	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/registry"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/translate"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// Router builds the gateway's REST surface (spec.md §6 HTTP endpoint
// table). Grounded on teacher's server/a2a/server.go Handler method — one
// net/http.ServeMux assembled by a single constructor, wrapped by the
// caller in otelhttp.NewHandler rather than inside this package, so this
// package stays free of a hard otelhttp import for callers that don't want
// tracing (e.g. unit tests).
func (g *Gateway) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/message:send", g.handleMessageSend)
	mux.HandleFunc("POST /api/v1/message:stream", g.handleMessageStream)
	mux.HandleFunc("GET /api/v1/tasks/{taskId}", g.handleGetTask)
	mux.HandleFunc("POST /api/v1/tasks/{taskId}:cancel", g.handleCancelTask)
	mux.HandleFunc("GET /api/v1/sse/subscribe/{taskId}", g.handleSubscribeTaskHTTP)
	mux.HandleFunc("GET /api/v1/sse/session/{sessionId}", g.handleSubscribeSessionHTTP)
	mux.HandleFunc("POST /api/v1/a2a/legacy", g.handleLegacyA2A)

	mux.HandleFunc("GET /api/v1/artifacts/{sessionId}", g.handleListArtifacts)
	mux.HandleFunc("POST /api/v1/artifacts/{sessionId}", g.handleUploadArtifact)
	mux.HandleFunc("GET /api/v1/artifacts/{sessionId}/{filename}", g.handleLoadArtifact)
	mux.HandleFunc("DELETE /api/v1/artifacts/{sessionId}/{filename}", g.handleDeleteArtifact)

	mux.HandleFunc("POST /share/{sessionId}", g.handleCreateShare)
	mux.HandleFunc("GET /share/{shareId}", g.handleGetShare)
	mux.HandleFunc("PATCH /share/{shareId}", g.handleUpdateShare)
	mux.HandleFunc("DELETE /share/{shareId}", g.handleDeleteShare)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeErr(w http.ResponseWriter, err error) {
	status := sameerrors.HTTPStatus(sameerrors.KindOf(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// userIdentityFromHeaders resolves the caller's identity (spec.md §4.5
// "Authorization"). In dev auth mode (the only mode this package
// implements directly) identity is trusted from request headers set by an
// upstream proxy; an "external" auth mode defers to a caller-supplied
// middleware wrapping Router(), so no HTTP client to an identity provider
// lives in this package.
func userIdentityFromHeaders(r *http.Request) (userID, email string) {
	return r.Header.Get("X-User-Id"), r.Header.Get("X-User-Email")
}

type messageSendRequest struct {
	TargetAgentName string         `json:"targetAgentName"`
	SessionID       string         `json:"sessionId"`
	ClientID        string         `json:"clientId"`
	Parts           []types.Part   `json:"parts"`
	Metadata        map[string]any `json:"metadata"`
}

func (g *Gateway) submitFromRequest(r *http.Request, streaming bool) (types.LogicalTaskID, error) {
	var req messageSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", sameerrors.New(sameerrors.ProtocolError, "gateway", "submitFromRequest", err)
	}
	userID, email := userIdentityFromHeaders(r)
	return g.SubmitTask(r.Context(), SubmitInput{
		TargetAgentName: req.TargetAgentName,
		MessageParts:    req.Parts,
		SessionID:       types.SessionID(req.SessionID),
		UserIdentity:    registry.UserIdentity{ID: userID, Email: email, Source: "header"},
		ClientID:        req.ClientID,
		IsStreaming:     streaming,
		Metadata:        req.Metadata,
	})
}

// handleMessageSend implements POST /api/v1/message:send: submits a task
// and returns its LogicalTaskId immediately; the caller follows up with
// GET /api/v1/tasks/{taskId} or the SSE subscribe endpoint.
func (g *Gateway) handleMessageSend(w http.ResponseWriter, r *http.Request) {
	taskID, err := g.submitFromRequest(r, false)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"taskId": string(taskID)})
}

// handleMessageStream implements POST /api/v1/message:stream: submits a
// task and immediately starts streaming its SSE events on the same
// response, skipping the separate subscribe round-trip.
func (g *Gateway) handleMessageStream(w http.ResponseWriter, r *http.Request) {
	taskID, err := g.submitFromRequest(r, true)
	if err != nil {
		writeErr(w, err)
		return
	}
	g.HandleSubscribeTask(w, r, taskID)
}

// handleLegacyA2A implements POST /api/v1/a2a/legacy: accepts a legacy SAM
// A2A dialect JSON-RPC envelope (tasks/send, tasks/sendSubscribe,
// tasks/cancel), runs it through the inbound translator (spec.md §4.2),
// and dispatches it the same way the modern message:send/stream/cancel
// endpoints do. The legacy dialect carries no targetAgentName in its
// params, so the target agent comes from the `?agent=` query parameter
// instead, mirroring how the Proxy resolves the target agent from the
// mesh topic rather than the payload.
func (g *Gateway) handleLegacyA2A(w http.ResponseWriter, r *http.Request) {
	var legacyReq types.Request
	if err := json.NewDecoder(r.Body).Decode(&legacyReq); err != nil {
		writeErr(w, sameerrors.New(sameerrors.ProtocolError, "gateway", "handleLegacyA2A", err))
		return
	}

	result, err := translate.TranslateInbound(&legacyReq, true)
	if err != nil {
		writeErr(w, err)
		return
	}
	userID, email := userIdentityFromHeaders(r)

	switch result.Method {
	case types.MethodModernTasksCancel:
		targetAgent := r.URL.Query().Get("agent")
		if err := g.Cancel(r.Context(), types.LogicalTaskID(result.CancelParams.ID), targetAgent); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, nil)

	case types.MethodModernMessageSend, types.MethodModernMessageStream:
		streaming := result.Method == types.MethodModernMessageStream
		taskID, err := g.SubmitTask(r.Context(), SubmitInput{
			TargetAgentName: r.URL.Query().Get("agent"),
			MessageParts:    result.Params.Message.Parts,
			SessionID:       result.Params.Message.ContextID,
			UserIdentity:    registry.UserIdentity{ID: userID, Email: email, Source: "header"},
			IsStreaming:     streaming,
			Metadata:        result.Params.Metadata,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		if streaming {
			g.HandleSubscribeTask(w, r, taskID)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"taskId": string(taskID)})

	default:
		writeErr(w, sameerrors.New(sameerrors.ProtocolError, "gateway", "handleLegacyA2A", fmt.Errorf("untranslatable result method: %s", result.Method)))
	}
}

func (g *Gateway) handleSubscribeTaskHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleSubscribeTask(w, r, types.LogicalTaskID(r.PathValue("taskId")))
}

func (g *Gateway) handleSubscribeSessionHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleSubscribeSession(w, r, types.SessionID(r.PathValue("sessionId")))
}

// handleGetTask implements GET /api/v1/tasks/{taskId}: returns the most
// recent terminal or status snapshot recorded for the task, reconstructed
// from the persistent event buffer so it answers correctly even after the
// originating gateway process restarted (spec.md §4.1's durability goal).
func (g *Gateway) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := types.LogicalTaskID(r.PathValue("taskId"))

	events, err := g.buffer.GetBufferedEvents(r.Context(), taskID, 0)
	if err != nil {
		writeErr(w, sameerrors.New(sameerrors.InternalError, "gateway", "handleGetTask", err))
		return
	}
	if len(events) == 0 {
		writeErr(w, sameerrors.New(sameerrors.NotFound, "gateway", "handleGetTask", fmt.Errorf("task %q not found", taskID)))
		return
	}

	var latestStatus *types.TaskStatusUpdateEvent
	var task *types.Task
	for _, ev := range events {
		switch ev.EventType {
		case types.BufferedEventStatusUpdate:
			var su types.TaskStatusUpdateEvent
			if err := json.Unmarshal(ev.EventPayload, &su); err == nil {
				latestStatus = &su
			}
		case types.BufferedEventTask:
			var t types.Task
			if err := json.Unmarshal(ev.EventPayload, &t); err == nil {
				task = &t
			}
		}
	}
	if task != nil {
		writeJSON(w, http.StatusOK, task)
		return
	}
	if latestStatus != nil {
		writeJSON(w, http.StatusOK, latestStatus)
		return
	}
	writeErr(w, sameerrors.New(sameerrors.NotFound, "gateway", "handleGetTask", fmt.Errorf("task %q has no status recorded", taskID)))
}

type cancelTaskRequest struct {
	TargetAgentName string `json:"targetAgentName"`
}

func (g *Gateway) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := types.LogicalTaskID(r.PathValue("taskId"))
	var req cancelTaskRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := g.Cancel(r.Context(), taskID, req.TargetAgentName); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, nil)
}

// handleListArtifacts implements GET /api/v1/artifacts/{sessionId}.
func (g *Gateway) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	userID, _ := userIdentityFromHeaders(r)
	saved, err := g.artifacts.List(r.Context(), g.cfg.AppName, userID, sessionID)
	if err != nil {
		writeErr(w, sameerrors.New(sameerrors.InternalError, "gateway", "handleListArtifacts", err))
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleUploadArtifact implements POST /api/v1/artifacts/{sessionId}: a
// multipart upload with a `file` part and a `metadata_json` part carrying
// a JSON-encoded artifact.Metadata (spec.md §4.6 "Artifact upload").
func (g *Gateway) handleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	userID, _ := userIdentityFromHeaders(r)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, sameerrors.New(sameerrors.ProtocolError, "gateway", "handleUploadArtifact", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, sameerrors.New(sameerrors.ProtocolError, "gateway", "handleUploadArtifact", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, sameerrors.New(sameerrors.InternalError, "gateway", "handleUploadArtifact", err))
		return
	}

	meta := metadataFromUpload(header, r.FormValue("metadata_json"))
	saved, err := g.artifacts.Save(r.Context(), g.cfg.AppName, userID, sessionID, meta.Name, data, meta)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func metadataFromUpload(header *multipart.FileHeader, rawJSON string) artifact.Metadata {
	meta := artifact.Metadata{Name: header.Filename, MimeType: header.Header.Get("Content-Type")}
	if rawJSON != "" {
		_ = json.Unmarshal([]byte(rawJSON), &meta)
	}
	// Missing-name uploads fall back to the multipart filename (Open
	// Question resolved in DESIGN.md: an artifact upload with no
	// `name` in metadata_json is named after the uploaded file instead
	// of being rejected).
	if meta.Name == "" {
		meta.Name = header.Filename
	}
	return meta
}

func (g *Gateway) handleLoadArtifact(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	filename := r.PathValue("filename")
	userID, _ := userIdentityFromHeaders(r)

	versions, err := g.artifacts.ListVersions(r.Context(), g.cfg.AppName, userID, sessionID, filename)
	if err != nil || len(versions) == 0 {
		writeErr(w, sameerrors.New(sameerrors.NotFound, "gateway", "handleLoadArtifact", fmt.Errorf("artifact %q not found", filename)))
		return
	}
	version := versions[len(versions)-1]
	if v := r.URL.Query().Get("version"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			version = n
		}
	}

	uri := artifact.BuildURI(g.cfg.AppName, userID, sessionID, filename, version)
	data, meta, err := g.artifacts.Load(r.Context(), uri)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, meta.Name))
	w.Write(data)
}

func (g *Gateway) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	filename := r.PathValue("filename")
	userID, _ := userIdentityFromHeaders(r)
	if err := g.artifacts.Delete(r.Context(), g.cfg.AppName, userID, sessionID, filename); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type createShareRequest struct {
	Title                 string   `json:"title"`
	RequireAuthentication bool     `json:"requireAuthentication"`
	AllowedDomains        []string `json:"allowedDomains"`
}

func (g *Gateway) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	sessionID := types.SessionID(r.PathValue("sessionId"))
	userID, _ := userIdentityFromHeaders(r)

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, sameerrors.New(sameerrors.ProtocolError, "gateway", "handleCreateShare", err))
		return
	}
	link, err := g.shares.Create(CreateShareInput{
		SessionID:             sessionID,
		UserID:                userID,
		Title:                 req.Title,
		RequireAuthentication: req.RequireAuthentication,
		AllowedDomains:        req.AllowedDomains,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (g *Gateway) handleGetShare(w http.ResponseWriter, r *http.Request) {
	shareID := r.PathValue("shareId")
	link, ok := g.shares.Get(shareID)
	if !ok || link.IsDeleted() {
		writeErr(w, sameerrors.New(sameerrors.NotFound, "gateway", "handleGetShare", fmt.Errorf("share %q not found", shareID)))
		return
	}
	userID, email := userIdentityFromHeaders(r)
	allowed, reason := link.CanBeAccessedBy(userID, email)
	if !allowed {
		writeErr(w, sameerrors.New(sameerrors.AuthorizationError, "gateway", "handleGetShare", errors.New(reason)))
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (g *Gateway) handleUpdateShare(w http.ResponseWriter, r *http.Request) {
	shareID := r.PathValue("shareId")
	userID, _ := userIdentityFromHeaders(r)

	var req struct {
		RequireAuthentication *bool     `json:"requireAuthentication"`
		AllowedDomains        *[]string `json:"allowedDomains"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, sameerrors.New(sameerrors.ProtocolError, "gateway", "handleUpdateShare", err))
		return
	}
	link, err := g.shares.Update(shareID, userID, UpdateShareInput{
		RequireAuthentication: req.RequireAuthentication,
		AllowedDomains:        req.AllowedDomains,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (g *Gateway) handleDeleteShare(w http.ResponseWriter, r *http.Request) {
	shareID := r.PathValue("shareId")
	userID, _ := userIdentityFromHeaders(r)
	if err := g.shares.Delete(shareID, userID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

