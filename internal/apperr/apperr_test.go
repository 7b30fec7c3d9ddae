package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errDuplicate = Conflict("duplicate", "already exists")

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(errDuplicate))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("outer: %w", errDuplicate)))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, "duplicate", CodeOf(errDuplicate))
	assert.Equal(t, "internal_error", CodeOf(errors.New("plain")))
}

func TestWrapKeepsIdentity(t *testing.T) {
	cause := errors.New("pq: duplicate key")
	err := errDuplicate.Wrap(cause)

	assert.ErrorIs(t, err, errDuplicate)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "pq: duplicate key")
	assert.Nil(t, errDuplicate.Err)
}

func TestStorage(t *testing.T) {
	err := Storage("insert transaction", errors.New("connection reset"))
	assert.True(t, IsKind(err, KindStorage))
	assert.False(t, IsKind(nil, KindStorage))
	assert.Equal(t, "storage", KindStorage.String())
}
