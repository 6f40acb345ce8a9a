package apperr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	inv := Invalid("booklet.Order", 5, "must be a multiple of 4")
	assert.True(t, IsInvalidArgument(fmt.Errorf("wrapped: %w", inv)))
	assert.Contains(t, inv.Error(), "5")
	assert.Equal(t, 2, ExitCode(inv))

	bug := Invariant("imposer.Compose", "order length %d", 7)
	assert.True(t, IsInvariant(bug))
	assert.Equal(t, 3, ExitCode(bug))

	res := Resource("open", "/tmp/x.pdf", os.ErrNotExist)
	assert.True(t, IsResource(res))
	assert.True(t, errors.Is(res, os.ErrNotExist))
	assert.Contains(t, res.Error(), "/tmp/x.pdf")
	assert.Equal(t, 1, ExitCode(res))

	assert.Nil(t, Resource("open", "x", nil))
	assert.Equal(t, 0, ExitCode(nil))
}
