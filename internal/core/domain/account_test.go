package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthState(t *testing.T) {
	inProgress := map[AuthState]bool{
		AuthStateAuthenticating: true,
		AuthStateRegistering:    true,
	}
	terminal := map[AuthState]bool{
		AuthStateAuthenticated:        true,
		AuthStateAuthenticationFailed: true,
		AuthStateRegistered:           true,
		AuthStateRegistrationFailed:   true,
	}

	all := []AuthState{
		AuthStateIdle, AuthStateAuthenticating, AuthStateAuthenticated, AuthStateAuthenticationFailed,
		AuthStateRegistering, AuthStateRegistered, AuthStateRegistrationFailed,
	}
	for _, s := range all {
		assert.Equal(t, inProgress[s], s.InProgress(), s)
		assert.Equal(t, terminal[s], s.Terminal(), s)
	}
}

func TestInventoryRecord_OwnedBy(t *testing.T) {
	r := InventoryRecord{OwnerID: "owner-1"}
	assert.True(t, r.OwnedBy("owner-1"))
	assert.False(t, r.OwnedBy("owner-2"))
	assert.False(t, InventoryRecord{}.OwnedBy(""))
}
