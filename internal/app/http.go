package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parley/core/internal/convo"
	"parley/core/internal/search"
	"parley/core/internal/store"
)

// Pinger reports backend connectivity for the readiness probe.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// EntrySearcher serves full text search over conversation entries.
type EntrySearcher interface {
	Search(orgPublicID, convoPublicID, query string, limit int) ([]search.Result, error)
}

type HTTPServer struct {
	convos     ConvoService
	directory  Directory
	db         Pinger
	searcher   EntrySearcher
	corsOrigin string
}

func NewHTTPServer(convos ConvoService, directory Directory, db Pinger, corsOrigin string) *HTTPServer {
	return &HTTPServer{convos: convos, directory: directory, db: db, corsOrigin: corsOrigin}
}

// SetSearcher wires the search backend when one is configured.
func (s *HTTPServer) SetSearcher(searcher EntrySearcher) {
	s.searcher = searcher
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// The member acting on behalf of the request arrives from the platform
// gateway in this header, already authenticated upstream.
const actorHeader = "X-Org-Member-Public-Id"

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
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
		if err := s.db.PingContext(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	// Everything below is /api/orgs/{shortcode}/convos...
	if len(parts) < 4 || parts[0] != "api" || parts[1] != "orgs" || parts[3] != "convos" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	org, actor, ok := s.resolveContext(w, r, parts[2])
	if !ok {
		return
	}

	switch {
	case len(parts) == 4 && r.Method == http.MethodPost:
		var input convo.CreateConvoInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.convos.CreateConvo(r.Context(), org, actor, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, result)
		return

	case len(parts) == 4 && r.Method == http.MethodDelete:
		var body struct {
			PublicIDs []string `json:"publicIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.convos.DeleteConvos(r.Context(), org, actor, body.PublicIDs); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case len(parts) == 5 && parts[4] == "reply" && r.Method == http.MethodPost:
		var input convo.ReplyInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.convos.Reply(r.Context(), org, actor, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, result)
		return

	case len(parts) == 5 && parts[4] == "search" && r.Method == http.MethodGet:
		if s.searcher == nil {
			writeError(w, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
			return
		}
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Search query is required", nil)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		results, err := s.searcher.Search(org.PublicID, r.URL.Query().Get("convo"), query, limit)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is unavailable", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
		return

	case len(parts) == 5 && r.Method == http.MethodGet:
		detail, err := s.convos.GetConvo(r.Context(), org, actor, parts[4])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return

	case len(parts) == 6 && parts[5] == "summary" && r.Method == http.MethodGet:
		summary, err := s.convos.GetConvoForMember(r.Context(), org, actor, parts[4])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return

	case len(parts) == 7 && parts[5] == "spaces" && r.Method == http.MethodPost:
		if err := s.convos.AddToSpace(r.Context(), org, actor, parts[4], parts[6]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case len(parts) == 7 && parts[5] == "spaces" && r.Method == http.MethodPut:
		if err := s.convos.MoveToSpace(r.Context(), org, actor, parts[4], parts[6]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case len(parts) == 6 && parts[5] == "workflows" && r.Method == http.MethodGet:
		states, err := s.convos.GetConvoSpaceWorkflows(r.Context(), org, parts[4])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"spaces": states})
		return

	case len(parts) == 6 && parts[5] == "workflows" && r.Method == http.MethodPost:
		var body struct {
			SpacePublicID    string `json:"spacePublicId"`
			WorkflowPublicID string `json:"workflowPublicId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.convos.SetWorkflow(r.Context(), org, actor, parts[4], body.SpacePublicID, body.WorkflowPublicID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// resolveContext loads the org from the path shortcode and the acting member
// from the gateway header. Both must resolve before any handler runs.
func (s *HTTPServer) resolveContext(w http.ResponseWriter, r *http.Request, shortcode string) (store.Org, store.OrgMember, bool) {
	org, err := s.directory.OrgByShortcode(r.Context(), shortcode)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Organization not found", nil)
		return store.Org{}, store.OrgMember{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Organization lookup failed", nil)
		return store.Org{}, store.OrgMember{}, false
	}

	memberPublicID := strings.TrimSpace(r.Header.Get(actorHeader))
	if memberPublicID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return store.Org{}, store.OrgMember{}, false
	}
	actor, err := s.directory.MemberByPublicID(r.Context(), org.ID, memberPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return store.Org{}, store.OrgMember{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Member lookup failed", nil)
		return store.Org{}, store.OrgMember{}, false
	}
	return org, actor, true
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
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, "+actorHeader)
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
		if errors.Is(err, http.ErrBodyReadAfterClose) {
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *convo.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
