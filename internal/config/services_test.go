package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseServiceSet(t *testing.T) {
	set := ParseServiceSet("nginx, botaniq-node ,worker.service,,")

	// Bare names match with or without the unit suffix.
	assert.True(t, set.Allowed("nginx"))
	assert.True(t, set.Allowed("nginx.service"))
	assert.True(t, set.Allowed("botaniq-node"))

	// Suffixed entries match both spellings too.
	assert.True(t, set.Allowed("worker"))
	assert.True(t, set.Allowed("worker.service"))

	assert.False(t, set.Allowed("postgres"))
	assert.False(t, set.Allowed(""))
}

func TestParseServiceSet_Empty(t *testing.T) {
	set := ParseServiceSet("")
	assert.Empty(t, set.Names())
	assert.False(t, set.Allowed("nginx"))
}

func TestServiceSet_NamesKeepConfiguredOrder(t *testing.T) {
	set := ParseServiceSet("nginx,botaniq-node,worker.service,nginx.service")
	assert.Equal(t, []string{"nginx", "botaniq-node", "worker"}, set.Names())
}
