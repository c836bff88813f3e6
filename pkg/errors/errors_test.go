package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"expired", ErrTokenExpired, "expired"},
		{"wrapped malformed", fmt.Errorf("%w: bad segment", ErrTokenMalformed), "malformed"},
		{"wrong type", ErrTokenWrongType, "wrong-type"},
		{"revoked", ErrTokenRevoked, "revoked"},
		{"credentials hide cause", fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrUserInactive), "invalid-credentials"},
		{"inactive on refresh", fmt.Errorf("%w: %w", ErrUserInactiveOrMissing, ErrUserInactive), "user-inactive"},
		{"missing on refresh", fmt.Errorf("%w: %w", ErrUserInactiveOrMissing, ErrUserNotFound), "user-not-found"},
		{"unrelated", ErrInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}

func TestClientReason(t *testing.T) {
	assert.Equal(t, "expired", ClientReason(ErrTokenExpired))
	assert.Equal(t, "revoked", ClientReason(ErrTokenRevoked))
	assert.Equal(t, "revoked", ClientReason(fmt.Errorf("%w: %w", ErrUserInactiveOrMissing, ErrUserInactive)))
	assert.Equal(t, "revoked", ClientReason(fmt.Errorf("%w: %w", ErrUserInactiveOrMissing, ErrUserNotFound)))
	assert.Equal(t, "invalid-credentials", ClientReason(fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrUserInactive)))
	assert.Equal(t, "", ClientReason(ErrInternal))
}
