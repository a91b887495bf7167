package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signUpBody struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Internal string `json:"-" validate:"max=3"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := signUpBody{Username: "fahim", Password: "Passw0rd!", Email: "fahim@example.com"}

		assert.NoError(t, ValidateStruct(&s))
	})

	t.Run("optional email may be empty", func(t *testing.T) {
		s := signUpBody{Username: "fahim", Password: "Passw0rd!"}

		assert.NoError(t, ValidateStruct(&s))
	})

	t.Run("missing required fields use json names", func(t *testing.T) {
		s := signUpBody{Email: "fahim@example.com"}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "username is required", fields["username"])
		assert.Equal(t, "password is required", fields["password"])
		assert.Len(t, fields, 2)
	})

	t.Run("invalid email", func(t *testing.T) {
		s := signUpBody{Username: "fahim", Password: "x", Email: "not-an-email"}

		fields := GetValidationFields(ValidateStruct(&s))
		assert.Equal(t, "email must be a valid email", fields["email"])
	})

	t.Run("untagged json name falls back to field name", func(t *testing.T) {
		s := signUpBody{Username: "fahim", Password: "x", Internal: "toolong"}

		fields := GetValidationFields(ValidateStruct(&s))
		assert.Equal(t, "Internal must be at most 3", fields["Internal"])
	})
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Message: "Test validation error",
		Fields: map[string]string{
			"field1": "error1",
		},
	}

	assert.Equal(t, "Test validation error", err.Error())
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&ValidationError{Message: "test", Fields: map[string]string{}}))
	assert.False(t, IsValidationError(assert.AnError))
}

func TestGetValidationFields(t *testing.T) {
	t.Run("gets fields from validation error", func(t *testing.T) {
		fields := map[string]string{
			"field1": "error1",
			"field2": "error2",
		}
		err := &ValidationError{
			Message: "test",
			Fields:  fields,
		}

		assert.Equal(t, fields, GetValidationFields(err))
	})

	t.Run("returns nil for non-validation error", func(t *testing.T) {
		assert.Nil(t, GetValidationFields(assert.AnError))
	})
}
