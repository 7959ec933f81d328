package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestAllowed тестирует ограничение по владельцу
func TestAllowed(t *testing.T) {
	open := &Bot{}
	assert.True(t, open.allowed(42))
	assert.True(t, open.allowed(7))

	owned := &Bot{ownerID: 42}
	assert.True(t, owned.allowed(42))
	assert.False(t, owned.allowed(7))
}
