package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/theBrainly/chatgpt-clone/internal/export"
	"github.com/theBrainly/chatgpt-clone/internal/llm"
	"github.com/theBrainly/chatgpt-clone/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/models" {
		writeJSON(w, http.StatusOK, map[string]any{
			"models":  llm.Catalog,
			"default": llm.DefaultModel,
		})
		return
	}

	parts := splitPath(r.URL.Path)

	// Share-link views are token-authenticated; the bearer identity is
	// optional there (read) or required (join).
	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "shared" {
		s.handleShared(w, r, parts)
		return
	}

	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit, err := intQuery(r, "limit", 20)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		offset, err := intQuery(r, "offset", 0)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		payload, err := s.service.SearchChats(r.Context(), actor, q, limit, offset)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.URL.Path == "/api/chats" {
		switch r.Method {
		case http.MethodGet:
			chats, err := s.service.ListChats(r.Context(), actor)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
			return
		case http.MethodPost:
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			chat, err := s.service.CreateChat(r.Context(), actor, body.Title)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, chat)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if r.URL.Path == "/api/memory" {
		s.handleMemory(w, r, actor)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/upload" {
		s.handleUpload(w, r, actor)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/user/stats" {
		payload, err := s.service.UserStats(r.Context(), actor)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/user/export" {
		payload, err := s.service.ExportUserData(r.Context(), actor)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="export.json"`)
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "invites" {
		s.handleInvite(w, r, actor, parts[2])
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "chats" {
		s.handleChat(w, r, actor, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request, actor Actor, parts []string) {
	chatID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			chat, err := s.service.GetChat(r.Context(), actor, chatID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, chat)
		case http.MethodPut:
			var body struct {
				Title    *string         `json:"title"`
				Messages []store.Message `json:"messages"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			chat, err := s.service.UpdateChat(r.Context(), actor, chatID, body.Title, body.Messages)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, chat)
		case http.MethodDelete:
			if err := s.service.DeleteChat(r.Context(), actor, chatID); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	action := parts[3]

	if action == "share" && len(parts) == 4 {
		switch r.Method {
		case http.MethodPost:
			var body ShareSettingsInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			settings, err := s.service.SetShareSettings(r.Context(), actor, chatID, body)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, settings)
		case http.MethodDelete:
			if err := s.service.Unshare(r.Context(), actor, chatID); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if action == "collaborators" {
		if len(parts) == 4 {
			switch r.Method {
			case http.MethodGet:
				collaborators, err := s.service.ListCollaborators(r.Context(), actor, chatID)
				if err != nil {
					s.writeMapped(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"collaborators": collaborators})
			case http.MethodPost:
				var body struct {
					Email string `json:"email"`
					Role  string `json:"role"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				invite, err := s.service.CreateInvite(r.Context(), actor, chatID, body.Email, body.Role)
				if err != nil {
					s.writeMapped(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, invite)
			default:
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			}
			return
		}
		if len(parts) == 5 && r.Method == http.MethodDelete {
			if err := s.service.RemoveCollaborator(r.Context(), actor, chatID, parts[4]); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	if action == "activity" && len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			users, err := s.service.ListPresence(r.Context(), actor, chatID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"activeUsers": users})
		case http.MethodPost:
			var body struct {
				Kind string `json:"kind"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.RecordPresence(r.Context(), actor, chatID, body.Kind); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if action == "messages" && len(parts) == 4 && r.Method == http.MethodPost {
		var body struct {
			Content     string             `json:"content"`
			Attachments []store.Attachment `json:"attachments"`
			Model       string             `json:"model"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.streamTurn(w, r, func(onDelta func(string) error) (TurnResult, error) {
			return s.service.SendMessage(r.Context(), actor, chatID, body.Content, body.Attachments, body.Model, onDelta)
		})
		return
	}

	if action == "messages" && len(parts) == 5 {
		messageID := parts[4]
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Content string `json:"content"`
				Model   string `json:"model"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.streamTurn(w, r, func(onDelta func(string) error) (TurnResult, error) {
				return s.service.EditMessage(r.Context(), actor, chatID, messageID, body.Content, body.Model, onDelta)
			})
		case http.MethodDelete:
			if err := s.service.DeleteMessage(r.Context(), actor, chatID, messageID); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if action == "regenerate" && len(parts) == 4 && r.Method == http.MethodPost {
		var body struct {
			Model string `json:"model"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.streamTurn(w, r, func(onDelta func(string) error) (TurnResult, error) {
			return s.service.Regenerate(r.Context(), actor, chatID, body.Model, onDelta)
		})
		return
	}

	if action == "export" && len(parts) == 4 && r.Method == http.MethodGet {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		result, err := s.service.ExportChat(r.Context(), actor, chatID, format)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		w.Header().Set("Content-Type", result.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if action == "stop" && len(parts) == 4 && r.Method == http.MethodPost {
		stopped, err := s.service.StopGeneration(r.Context(), actor, chatID)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// streamTurn relays an assistant turn as server-sent events: one data line
// per content delta, then a terminal event describing the outcome.
func (s *HTTPServer) streamTurn(w http.ResponseWriter, r *http.Request, run func(onDelta func(string) error) (TurnResult, error)) {
	flusher, canFlush := w.(http.Flusher)

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	result, err := run(func(delta string) error {
		start()
		payload, merr := json.Marshal(map[string]string{"content": delta})
		if merr != nil {
			return merr
		}
		if _, werr := fmt.Fprintf(w, "data: %s\n\n", payload); werr != nil {
			return werr
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	})

	if err != nil && !started {
		// Failed before any chunk went out; plain JSON error.
		s.writeMapped(w, err)
		return
	}

	start()
	switch {
	case err != nil:
		fmt.Fprintf(w, "data: %s\n\n", mustJSON(map[string]any{"error": FallbackAssistantMessage}))
	case result.Aborted:
		fmt.Fprintf(w, "data: %s\n\n", mustJSON(map[string]any{"aborted": true}))
	case result.Message != nil:
		fmt.Fprintf(w, "data: %s\n\n", mustJSON(map[string]any{"message": result.Message}))
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if canFlush {
		flusher.Flush()
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func (s *HTTPServer) handleShared(w http.ResponseWriter, r *http.Request, parts []string) {
	chatID, token := parts[2], parts[3]

	if len(parts) == 4 && r.Method == http.MethodGet {
		chat, err := s.service.GetSharedChat(r.Context(), chatID, token)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, chat)
		return
	}

	if len(parts) == 5 && parts[4] == "join" && r.Method == http.MethodPost {
		actor, ok := s.requireActor(w, r)
		if !ok {
			return
		}
		chat, err := s.service.JoinViaShareLink(r.Context(), actor, chatID, token)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, chat)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleInvite(w http.ResponseWriter, r *http.Request, actor Actor, inviteID string) {
	switch r.Method {
	case http.MethodGet:
		invite, err := s.service.GetInvite(r.Context(), actor, inviteID)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, invite)
	case http.MethodPost:
		var body struct {
			Action string `json:"action"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		invite, err := s.service.ResolveInvite(r.Context(), actor, inviteID, body.Action)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, invite)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleMemory(w http.ResponseWriter, r *http.Request, actor Actor) {
	switch r.Method {
	case http.MethodGet:
		memories, err := s.service.ListMemories(r.Context(), actor)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memories": memories})
	case http.MethodPost:
		var body struct {
			Key     string `json:"key"`
			Value   string `json:"value"`
			Context string `json:"context"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.StoreMemory(r.Context(), actor, body.Key, body.Value, body.Context); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case http.MethodDelete:
		key := strings.TrimSpace(r.URL.Query().Get("key"))
		if key == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "key is required", nil)
			return
		}
		if err := s.service.DeleteMemory(r.Context(), actor, key); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, actor Actor) {
	if err := r.ParseMultipartForm(12 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "No file provided", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, int64(12<<20)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read file", nil)
		return
	}

	upload, err := s.service.UploadAttachment(r.Context(), actor, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

// requireActor resolves the authenticated identity the gateway put on the
// request. No identity means the request never reached the gateway.
func (s *HTTPServer) requireActor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	actor := Actor{
		ID:     strings.TrimSpace(r.Header.Get("X-User-Id")),
		Name:   strings.TrimSpace(r.Header.Get("X-User-Name")),
		Email:  strings.TrimSpace(strings.ToLower(r.Header.Get("X-User-Email"))),
		Avatar: strings.TrimSpace(r.Header.Get("X-User-Avatar")),
	}
	if actor.ID == "" {
		s.writeMapped(w, errUnauthenticated())
		return Actor{}, false
	}
	return actor, true
}

func (s *HTTPServer) writeMapped(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-User-Id, X-User-Name, X-User-Email, X-User-Avatar")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func intQuery(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
