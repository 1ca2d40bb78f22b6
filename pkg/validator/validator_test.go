package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook/pkg/errors"
)

type sample struct {
	Reason   string  `json:"reason" validate:"required,notblank"`
	Language *string `json:"language" validate:"omitempty,oneof=en fr ar"`
	Nickname *string `json:"nickname" validate:"omitempty,notblank"`
}

func TestNotBlank(t *testing.T) {
	v := New()

	assert.NoError(t, v.Struct(sample{Reason: "checkup"}))

	err := v.Struct(sample{Reason: "   "})
	require.Error(t, err)

	converted := FromBinding(err)
	assert.True(t, errors.IsValidation(converted))
	assert.Contains(t, converted.(*errors.AppError).Message, "reason must not be blank")

	blank := " "
	assert.Error(t, v.Struct(sample{Reason: "x", Nickname: &blank}))
}

func TestOneOfMessage(t *testing.T) {
	lang := "de"
	err := New().Struct(sample{Reason: "x", Language: &lang})
	require.Error(t, err)

	appErr := FromBinding(err).(*errors.AppError)
	assert.Equal(t, "language must be one of [en fr ar]", appErr.Message)
}

func TestFromBindingNonValidation(t *testing.T) {
	err := FromBinding(assert.AnError)
	assert.True(t, errors.IsValidation(err))
}
