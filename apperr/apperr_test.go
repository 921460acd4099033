package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappedSentinelMatchesBothReasonAndKind(t *testing.T) {
	reason := BusinessRule("matching: duplicate application")
	err := fmt.Errorf("matching: apply: %w", reason)

	assert.ErrorIs(t, err, reason)
	assert.ErrorIs(t, err, ErrBusinessRule)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "business_rule", Label(err))
	assert.Equal(t, "matching: duplicate application", Message(err))
}

func TestLabel(t *testing.T) {
	cases := map[string]error{
		"ok":           nil,
		"error":        errors.New("db down"),
		"not_found":    NotFound("x"),
		"forbidden":    Forbidden("x"),
		"validation":   Validation("x"),
		"unauthorized": Unauthorized("x"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Label(err))
	}
}

func TestInfrastructureErrorsStayOpaque(t *testing.T) {
	err := fmt.Errorf("requirement: save: %w", errors.New("connection reset"))
	assert.Nil(t, KindOf(err))
	assert.Equal(t, "internal error", Message(err))
}
