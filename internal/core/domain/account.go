package domain

import "time"

const UnknownUser = "Unknown User"

type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthState is the position of a client in the sign-in or registration flow.
type AuthState string

const (
	AuthStateIdle                 AuthState = "idle"
	AuthStateAuthenticating       AuthState = "authenticating"
	AuthStateAuthenticated        AuthState = "authenticated"
	AuthStateAuthenticationFailed AuthState = "authentication_failed"
	AuthStateRegistering          AuthState = "registering"
	AuthStateRegistered           AuthState = "registered"
	AuthStateRegistrationFailed   AuthState = "registration_failed"
)

// InProgress reports whether a network call is outstanding for the state.
func (s AuthState) InProgress() bool {
	return s == AuthStateAuthenticating || s == AuthStateRegistering
}

// Terminal reports whether the flow has finished, successfully or not.
func (s AuthState) Terminal() bool {
	switch s {
	case AuthStateAuthenticated, AuthStateAuthenticationFailed,
		AuthStateRegistered, AuthStateRegistrationFailed:
		return true
	}
	return false
}

// Session is an issued sign-in token.
type Session struct {
	Token     string
	TokenID   string
	Account   Account
	ExpiresAt time.Time
}
