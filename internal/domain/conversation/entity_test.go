package conversation

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeyIsOrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, Key(a, b), Key(b, a))
	assert.True(t, strings.Contains(Key(a, b), a.String()))
	assert.True(t, strings.Contains(Key(a, b), b.String()))
	assert.NotEqual(t, Key(a, b), Key(a, uuid.New()))
}
