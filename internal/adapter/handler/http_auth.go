package handler

import (
	"net/http"
	"time"

	"github.com/rl1809/easy-inventory/internal/core/domain"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type sessionDTO struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Account   accountDTO `json:"account"`
}

type meDTO struct {
	Account     accountDTO `json:"account"`
	DisplayName string     `json:"display_name"`
}

func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body", State: domain.AuthStateRegistrationFailed})
		return
	}

	account, err := h.auth.Register(r.Context(), domain.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeErrorState(w, err, domain.AuthStateRegistrationFailed)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "registration successful",
		State:   domain.AuthStateRegistered,
		Data:    toAccountDTO(account),
	})
}

func (h *HTTPHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body", State: domain.AuthStateAuthenticationFailed})
		return
	}

	session, err := h.auth.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		writeErrorState(w, err, domain.AuthStateAuthenticationFailed)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cfg.CookieSecure,
		Expires:  session.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "signed in",
		State:   domain.AuthStateAuthenticated,
		Data: sessionDTO{
			Token:     session.Token,
			ExpiresAt: session.ExpiresAt,
			Account:   toAccountDTO(session.Account),
		},
	})
}

func (h *HTTPHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context(), tokenFrom(r.Context())); err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cfg.CookieSecure,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "signed out", State: domain.AuthStateIdle})
}

func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		State:   domain.AuthStateAuthenticated,
		Data: meDTO{
			Account:     toAccountDTO(account),
			DisplayName: h.auth.DisplayName(r.Context(), account.ID),
		},
	})
}

func (h *HTTPHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "password reset email sent"})
}

func (h *HTTPHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "password updated"})
}
