package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/models"
)

// CookieName carries the session token for browser clients.
const CookieName = "um_session"

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type SessionResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token,omitempty"`
}

type Handler struct {
	svc      Service
	log      *slog.Logger
	validate *validator.Validate
	ttl      time.Duration
	secure   bool
}

// NewHandler wires the auth endpoints. secure marks the session cookie
// HTTPS-only.
func NewHandler(svc Service, ttl time.Duration, secure bool, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log, validate: validator.New(), ttl: ttl, secure: secure}
}

// TokenFromRequest reads a bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "invalid JSON"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, registerMessage(err)))
		return
	}
	user, token, err := h.svc.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			apierr.Write(w, h.log, apierr.New(apierr.AlreadyExists, "Email already registered"))
			return
		}
		apierr.Write(w, h.log, err)
		return
	}
	h.setCookie(w, token)
	h.log.Info("user registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, SessionResponse{User: user, Token: token})
}

func registerMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch {
			case fe.Field() == "Password" && fe.Tag() == "min":
				return "Password must be at least 6 characters"
			case fe.Field() == "Email" && fe.Tag() == "email":
				return "Invalid email"
			}
		}
	}
	return "Name, email and password required"
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "invalid JSON"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "Email and password required"))
		return
	}
	user, token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			apierr.Write(w, h.log, apierr.New(apierr.Unauthenticated, "Invalid credentials"))
			return
		}
		apierr.Write(w, h.log, err)
		return
	}
	h.setCookie(w, token)
	writeJSON(w, http.StatusOK, SessionResponse{User: user, Token: token})
}

// Session reports the caller's user, or a null user when signed out.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)
	if token == "" {
		writeJSON(w, http.StatusOK, SessionResponse{})
		return
	}
	user, err := h.svc.Authenticate(r.Context(), token)
	if err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			h.log.Error("session lookup failed", "error", err)
		}
		writeJSON(w, http.StatusOK, SessionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{User: user})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
