package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const stateCookie = "deviart_oauth_state"

// Login перенаправляет на страницу авторизации DeviantArt.
// GET /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.auth.AuthCodeURL(state), http.StatusFound)
}

// Callback принимает authorization code и сохраняет токен.
// GET /auth/callback?code=&state=
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		BadRequest(w, "authorization denied: "+e)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		BadRequest(w, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth", MaxAge: -1})

	code := q.Get("code")
	if code == "" {
		BadRequest(w, "code is required")
		return
	}

	if HandleError(w, h.logger, h.auth.Exchange(r.Context(), code)) {
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// AuthStatus возвращает состояние авторизации.
// GET /api/auth/status
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.auth.Status(r.Context())
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, st)
}
