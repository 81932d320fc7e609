package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/teamprofiles/server/internal/auth"
	"github.com/obsidianstack/teamprofiles/server/internal/config"
	"github.com/obsidianstack/teamprofiles/server/internal/profile"
	"github.com/obsidianstack/teamprofiles/server/internal/render"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// slugPattern rejects malformed department values. How many department
// listings get cached is bounded by the display service.
var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Viewer is the read/invalidate surface of the display service.
type Viewer interface {
	DisplayDepartment(ctx context.Context, slug string) (render.View, error)
	Records(ctx context.Context, department string) ([]profile.Record, error)
	Invalidate(ctx context.Context) ([]string, error)
}

// Notifier is told about every successful invalidation.
type Notifier interface {
	Invalidated(keys []string, reason string)
}

// Options configures the handler.
type Options struct {
	// Auth guards DELETE /api/v1/cache.
	Auth config.AuthConfig
	// Notifier is optional.
	Notifier Notifier
}

// Handler is the HTTP handler for /team and /api/v1/*.
type Handler struct {
	svc    Viewer
	notify Notifier
	mux    *http.ServeMux
}

// New creates a Handler wired to svc and registers all routes.
func New(svc Viewer, opts Options) http.Handler {
	h := &Handler{svc: svc, notify: opts.Notifier, mux: http.NewServeMux()}

	requireKey := auth.RequireAPIKey(opts.Auth.Mode, opts.Auth.EffectiveHeader(), opts.Auth.Key())

	h.mux.HandleFunc("/team", h.team)
	h.mux.HandleFunc("/api/v1/profiles", h.profiles)
	h.mux.Handle("/api/v1/cache", requireKey(http.HandlerFunc(h.invalidate)))

	return withRequestID(h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// team returns GET /team: the cached HTML fragment.
func (h *Handler) team(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	dept, ok := department(w, r)
	if !ok {
		return
	}

	v, err := h.svc.DisplayDepartment(r.Context(), dept)
	if err != nil {
		slog.Error("api: display failed", "department", dept, "request_id", requestID(r), "err", err)
		jsonErr(w, r, http.StatusBadGateway, "content source unavailable")
		return
	}
	if v.IsEmpty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(v)) //nolint:errcheck
}

// profiles returns GET /api/v1/profiles: records from the source, uncached.
func (h *Handler) profiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	dept, ok := department(w, r)
	if !ok {
		return
	}

	recs, err := h.svc.Records(r.Context(), dept)
	if err != nil {
		slog.Error("api: list profiles failed", "department", dept, "request_id", requestID(r), "err", err)
		jsonErr(w, r, http.StatusBadGateway, "content source unavailable")
		return
	}
	out := make([]ProfileResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toProfileResponse(rec))
	}
	jsonResp(w, http.StatusOK, out)
}

// invalidate handles DELETE /api/v1/cache.
func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		jsonErr(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	keys, err := h.svc.Invalidate(r.Context())
	if err != nil {
		slog.Error("api: invalidate failed", "request_id", requestID(r), "err", err)
		jsonErr(w, r, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	if h.notify != nil {
		h.notify.Invalidated(keys, "api")
	}
	jsonResp(w, http.StatusOK, InvalidateResponse{Invalidated: len(keys), Keys: keys})
}

// --- helpers ----------------------------------------------------------------

// BuildTeam renders the listing for dept into its JSON form.
func BuildTeam(ctx context.Context, svc Viewer, dept string) (TeamResponse, error) {
	v, err := svc.DisplayDepartment(ctx, dept)
	if err != nil {
		return TeamResponse{}, err
	}
	return TeamResponse{
		Department:  dept,
		HTML:        string(v),
		Empty:       v.IsEmpty(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// department reads and validates the ?department= parameter. On failure it
// writes a 400 and returns false.
func department(w http.ResponseWriter, r *http.Request) (string, bool) {
	dept := r.URL.Query().Get("department")
	if dept != "" && !slugPattern.MatchString(dept) {
		jsonErr(w, r, http.StatusBadRequest, "invalid department")
		return "", false
	}
	return dept, true
}

type ctxKey struct{}

// withRequestID tags every request with an ID, echoes it in the response and
// logs the request once it completes.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", id,
		)
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, r *http.Request, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg, RequestID: requestID(r)})
}

// toProfileResponse maps a profile.Record to its JSON representation.
func toProfileResponse(rec profile.Record) ProfileResponse {
	depts := rec.Departments
	if depts == nil {
		depts = []string{}
	}
	return ProfileResponse{
		ID:          rec.ID,
		Name:        rec.Name,
		Position:    rec.Position,
		Bio:         rec.Bio,
		Photo:       rec.PhotoRef,
		Departments: depts,
		MenuOrder:   rec.MenuOrder,
		Contact: ContactResponse{
			Phone:    rec.Contact.Phone,
			Email:    rec.Contact.Email,
			Twitter:  rec.Contact.Twitter,
			LinkedIn: rec.Contact.LinkedIn,
		},
	}
}
