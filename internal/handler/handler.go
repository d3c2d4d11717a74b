// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/campushub/campus-events/internal/apperr"
	"github.com/campushub/campus-events/internal/auth"
	"github.com/campushub/campus-events/internal/model"
	"github.com/campushub/campus-events/internal/service"
)

// Handler holds all HTTP handlers for the campus events API.
type Handler struct {
	users     *service.UserService
	events    *service.EventService
	regs      *service.RegistrationService
	analytics *service.AnalyticsService
	tokens    *auth.TokenIssuer
}

// New constructs a Handler.
func New(
	users *service.UserService,
	events *service.EventService,
	regs *service.RegistrationService,
	analytics *service.AnalyticsService,
	tokens *auth.TokenIssuer,
) *Handler {
	return &Handler{
		users:     users,
		events:    events,
		regs:      regs,
		analytics: analytics,
		tokens:    tokens,
	}
}

// Routes builds the full router, including the middleware stack.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger)                  // structured access log
	r.Use(CORS)                    // permissive CORS for browser clients

	r.Get("/health", HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.SignUp)
		r.Post("/auth/login", h.Login)

		// Everything below requires a resolved caller identity.
		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Get("/events", h.ListEvents)
			r.Get("/events/{id}", h.GetEvent)
			r.Post("/events/{id}/register", h.Register)
			r.Delete("/events/{id}/unregister", h.Unregister)
			r.Get("/registrations", h.ListRegistrations)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)

				r.Post("/events", h.CreateEvent)
				r.Put("/events/{id}", h.UpdateEvent)
				r.Delete("/events/{id}", h.DeleteEvent)
				r.Get("/analytics", h.Analytics)
				r.Post("/maintenance/sweep", h.Sweep)
			})
		})
	})

	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Message: msg})
}

// writeError maps an error's kind to a stable HTTP status.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.Forbidden:
		status = http.StatusForbidden
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.Unavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	writeMessage(w, status, err.Error())
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ─── Auth handlers ────────────────────────────────────────────────────────────

// SignUp handles POST /api/auth/register
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.users.SignUp(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.users.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Event handlers ───────────────────────────────────────────────────────────

// ListEvents handles GET /api/events
// Admins get the raw events; participants get each event annotated with
// isRegistered and participantCount.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())

	events, err := h.events.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	if caller.Role == model.RoleParticipant {
		views, err := h.regs.AnnotateForParticipant(r.Context(), events, caller.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// CreateEvent handles POST /api/events (admin only)
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())

	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	event, err := h.events.Create(r.Context(), req, caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// UpdateEvent handles PUT /api/events/{id} (admin only)
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch model.UpdateEventRequest
	if err := decodeJSON(r, &patch); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	event, err := h.events.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /api/events/{id} (admin only)
// Deleting an event cascades to all of its registrations.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event deleted successfully"})
}

// ─── Registration handlers ────────────────────────────────────────────────────

// Register handles POST /api/events/{id}/register (participant only)
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())
	if caller.Role != model.RoleParticipant {
		writeMessage(w, http.StatusForbidden, "only participants can register for events")
		return
	}
	reg, err := h.regs.Register(r.Context(), chi.URLParam(r, "id"), caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// Unregister handles DELETE /api/events/{id}/unregister (participant only)
// A caller can only remove their own registration.
func (h *Handler) Unregister(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())
	if caller.Role != model.RoleParticipant {
		writeMessage(w, http.StatusForbidden, "only participants can unregister from events")
		return
	}
	if err := h.regs.Unregister(r.Context(), chi.URLParam(r, "id"), caller.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully unregistered from event"})
}

// ListRegistrations handles GET /api/registrations
// Returns the caller's registrations, newest first, each with its event.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())

	regs, err := h.regs.ListForUser(r.Context(), caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if regs == nil {
		regs = []model.UserRegistration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// ─── Admin handlers ───────────────────────────────────────────────────────────

// Analytics handles GET /api/analytics (admin only)
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Sweep handles POST /api/maintenance/sweep (admin only)
// Removes registrations left dangling by an interrupted cascade.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.events.SweepOrphanedRegistrations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
