// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/fitreserve/internal/model"
	"github.com/Shivanand-hulikatti/fitreserve/internal/service"
)

// Handler holds all HTTP handlers for the booking API.
type Handler struct {
	auth         *service.AuthService
	courses      *service.CourseService
	reservations *service.ReservationService
	validate     *validator.Validate
	log          zerolog.Logger
}

// New constructs a Handler.
func New(
	auth *service.AuthService,
	courses *service.CourseService,
	reservations *service.ReservationService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		auth:         auth,
		courses:      courses,
		reservations: reservations,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		log:          log,
	}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// bind decodes and validates the request body into dst. On failure it has
// already written the response.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		case "min", "max":
			msgs = append(msgs, field+" must satisfy "+fe.Tag()+"="+fe.Param())
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// logger returns the request-scoped logger, or the handler's own when the
// request did not pass through Logger.
func (h *Handler) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.log
}

// writeServiceError maps service outcomes to HTTP statuses. Anything that is
// not a business outcome is logged and reported as a generic failure.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var windowErr *service.CancellationWindowError
	switch {
	case errors.As(err, &windowErr):
		hours := math.Round(windowErr.HoursRemaining*10) / 10
		writeJSON(w, http.StatusUnprocessableEntity, model.ErrorResponse{Error: windowErr.Error(), HoursRemaining: &hours})
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, service.ErrCapacityExceeded),
		errors.Is(err, service.ErrDuplicateReservation),
		errors.Is(err, service.ErrCapacityBelowOccupancy),
		errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPastClass):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

// Register handles POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !h.bind(w, r, &req) {
		return
	}
	res, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !h.bind(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Me handles GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), UserFromContext(r.Context()).ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ─── Courses ──────────────────────────────────────────────────────────────────

// ListCourses handles GET /api/courses
// Returns a JSON array of all courses ordered by start time.
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ListCourses(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if courses == nil {
		courses = []model.Course{}
	}

	writeJSON(w, http.StatusOK, courses)
}

// GetCourse handles GET /api/courses/{id}
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.courses.GetCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// CreateCourse handles POST /api/courses (admin)
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCourseRequest
	if !h.bind(w, r, &req) {
		return
	}
	course, err := h.courses.CreateCourse(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, course)
}

// UpdateCourse handles PUT /api/courses/{id} (admin)
func (h *Handler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateCourseRequest
	if !h.bind(w, r, &req) {
		return
	}
	course, err := h.courses.UpdateCourse(r.Context(), chi.URLParam(r, "id"), req.ToUpdate())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// DeleteCourse handles DELETE /api/courses/{id} (admin)
func (h *Handler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := h.courses.DeleteCourse(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Reservations ─────────────────────────────────────────────────────────────

// ListReservations handles GET /api/reservations
// Returns the caller's reservations, newest first.
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	list, err := h.reservations.ListForUser(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Reservation{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetReservation handles GET /api/reservations/{id}
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.Get(r.Context(), chi.URLParam(r, "id"), UserFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateReservation handles POST /api/reservations
// Performs a concurrency-safe admission for the caller.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req model.ReserveRequest
	if !h.bind(w, r, &req) {
		return
	}
	user := UserFromContext(r.Context())
	res, err := h.reservations.Reserve(r.Context(), user.ID, req.CourseID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// CancelReservation handles DELETE /api/reservations/{id}
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if err := h.reservations.Cancel(r.Context(), chi.URLParam(r, "id"), user.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// Pinger is satisfied by the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles GET /health
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
