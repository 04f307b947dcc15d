package cpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRecognizesGrammar(t *testing.T) {
	assert.True(t, Valid(VerbAdd, ObjectRoute))
	assert.True(t, Valid(VerbList, ObjectConnection))
	assert.True(t, Valid(VerbSet, ObjectDebug))
	assert.False(t, Valid(VerbAdd, ObjectDebug))
	assert.False(t, Valid(VerbSet, ObjectRoute))
}

func TestValidateReturnsErrUnknownCommand(t *testing.T) {
	assert.NoError(t, Validate(VerbAdd, ObjectRoute))
	assert.ErrorIs(t, Validate("frobnicate", ObjectRoute), ErrUnknownCommand)
}

func TestCommandsEnumeratesGrammar(t *testing.T) {
	cmds := Commands()
	assert.NotEmpty(t, cmds)
	found := false
	for _, c := range cmds {
		if c.Verb == VerbAdd && c.Object == ObjectRoute {
			found = true
		}
	}
	assert.True(t, found)
}
