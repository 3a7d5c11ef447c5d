package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"intake/api/internal/blob"
	"intake/api/internal/workflow"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.routes())
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session Session)

func (s *HTTPServer) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})
		api.Get("/ready", s.handleReady)

		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", s.handleRegister)
			ar.Post("/login", s.handleLogin)
			ar.Post("/refresh", s.handleRefresh)
			ar.Post("/logout", s.handleLogout)
			ar.Get("/me", s.authed(s.handleMe))
		})

		api.Route("/requests", func(rr chi.Router) {
			rr.Get("/", s.authed(s.handleListRequests))
			rr.Post("/", s.authed(s.handleCreateRequest))
			rr.Get("/{id}", s.authed(s.handleGetRequest))
			rr.Put("/{id}", s.authed(s.handleUpdateRequest))
			rr.Get("/{id}/export", s.authed(s.handleExport))
			rr.Get("/{id}/history", s.authed(s.handleHistory))
			rr.Get("/{id}/history/{hash}", s.authed(s.handleSnapshot))
		})

		api.Route("/workflow/{id}", func(wr chi.Router) {
			wr.Put("/submit", s.authed(s.handleSubmit))
			wr.Put("/scrub-review", s.authed(s.handleReview(workflow.GateScrub)))
			wr.Put("/scrub-review/{reviewId}", s.authed(s.handleEditReview(workflow.GateScrub)))
			wr.Put("/committee-review", s.authed(s.handleReview(workflow.GateCommittee)))
			wr.Put("/committee-review/{reviewId}", s.authed(s.handleEditReview(workflow.GateCommittee)))
			wr.Put("/start-development", s.authed(s.handleStartDevelopment))
			wr.Get("/conversations/{gate}", s.authed(s.handleConversations))
		})

		api.Get("/comments/{requestId}", s.authed(s.handleListComments))
		api.Post("/comments/{requestId}", s.authed(s.handleAddComment))

		api.Get("/attachments/download/{id}", s.authed(s.handleDownload))
		api.Get("/attachments/{requestId}", s.authed(s.handleListAttachments))
		api.Post("/attachments/{requestId}", s.authed(s.handleUpload))

		api.Get("/search", s.authed(s.handleSearch))
	})
	return r
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
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
}

// Auth

func sessionPayload(session Session, user UserView) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt,
		"user":         user,
	}
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body RegisterInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, user, err := s.service.Register(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session, user))
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, user, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session, user))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt,
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request, session Session) {
	user, err := s.service.Me(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Requests

func (s *HTTPServer) handleListRequests(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.ListRequests(r.Context(), session, r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleCreateRequest(w http.ResponseWriter, r *http.Request, session Session) {
	var body RequestInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.CreateRequest(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleGetRequest(w http.ResponseWriter, r *http.Request, session Session) {
	detail, err := s.service.GetRequest(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleUpdateRequest(w http.ResponseWriter, r *http.Request, session Session) {
	var body RequestInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.UpdateRequest(r.Context(), session, chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session) {
	result, err := s.service.Export(r.Context(), session, chi.URLParam(r, "id"), r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, session Session) {
	limit := queryInt(r, "limit", 50)
	commits, err := s.service.History(r.Context(), session, chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *HTTPServer) handleSnapshot(w http.ResponseWriter, r *http.Request, session Session) {
	snapshot, err := s.service.Snapshot(r.Context(), session, chi.URLParam(r, "id"), chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snapshot)
}

// Workflow

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, session Session) {
	result, err := s.service.Submit(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleReview(gate workflow.Gate) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session Session) {
		var body struct {
			Decision string `json:"decision"`
			Remarks  string `json:"remarks"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Review(r.Context(), session, gate, chi.URLParam(r, "id"), body.Decision, body.Remarks)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *HTTPServer) handleEditReview(gate workflow.Gate) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session Session) {
		var body struct {
			Remarks string `json:"remarks"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		review, err := s.service.EditReview(r.Context(), session, gate, chi.URLParam(r, "id"), chi.URLParam(r, "reviewId"), body.Remarks)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Review updated", "review": review})
	}
}

func (s *HTTPServer) handleStartDevelopment(w http.ResponseWriter, r *http.Request, session Session) {
	result, err := s.service.StartDevelopment(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleConversations(w http.ResponseWriter, r *http.Request, session Session) {
	gate, ok := workflow.ParseGate(chi.URLParam(r, "gate"))
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Unknown review gate", nil)
		return
	}
	groups, err := s.service.Conversations(r.Context(), session, gate, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gate": gate, "conversations": groups})
}

// Comments

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.ListComments(r.Context(), session, chi.URLParam(r, "requestId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request, session Session) {
	var body CommentInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.AddComment(r.Context(), session, chi.URLParam(r, "requestId"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// Attachments

const uploadMemory = 32 << 20

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, blob.MaxFiles*blob.MaxFileSize+(1<<20))
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "expected multipart form with files", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	uploads := make([]Upload, 0, len(headers))
	for _, header := range headers {
		uploads = append(uploads, Upload{
			Name:        header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Open:        openPart(header),
		})
	}
	items, err := s.service.UploadAttachments(r.Context(), session, chi.URLParam(r, "requestId"), uploads)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, items)
}

func openPart(header *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return header.Open()
	}
}

func (s *HTTPServer) handleListAttachments(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.ListAttachments(r.Context(), session, chi.URLParam(r, "requestId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request, session Session) {
	item, reader, err := s.service.OpenAttachment(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", item.Mimetype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", item.OriginalName))
	if item.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(item.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		slog.Warn("stream attachment", "attachment_id", item.ID, "error", err)
	}
}

// Search

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	resp, err := s.service.Search(r.Context(), session, query.Get("q"), query.Get("status"), queryInt(r, "limit", 20))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Plumbing

func (s *HTTPServer) authed(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		next(w, r, session)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		status, code, message, details := mapError(err)
		if status == http.StatusInternalServerError {
			slog.Error("session lookup failed", "request_id", requestIDFrom(r.Context()), "error", err)
			message = "Session lookup failed"
		}
		writeError(w, status, code, message, details)
		return Session{}, false
	}
	return session, true
}

// fail writes the mapped error. Server errors are logged with the cause.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "request_id", requestIDFrom(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		slog.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
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
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
