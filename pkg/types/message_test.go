package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatMessage(t *testing.T) {
	t.Run("valid roles", func(t *testing.T) {
		for _, role := range []Role{RoleSystem, RoleUser, RoleAssistant} {
			msg, err := NewChatMessage(role, "hello")
			require.NoError(t, err, "role %s", role)
			assert.Equal(t, role, msg.Role)
			assert.Equal(t, "hello", msg.Content)
		}
	})

	t.Run("invalid roles", func(t *testing.T) {
		for _, role := range []Role{"", "tool", "System", "admin"} {
			_, err := NewChatMessage(role, "hello")
			require.Error(t, err, "role %q", role)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, "role", ve.Field)
			assert.ErrorIs(t, err, ErrInvalidRole)
			assert.True(t, IsValidationError(err))
		}
	})
}

func TestChatMessage_Validate(t *testing.T) {
	assert.NoError(t, ChatMessage{Role: RoleUser}.Validate())
	assert.Error(t, ChatMessage{Role: "bot"}.Validate())
}
