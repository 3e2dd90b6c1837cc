package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoginPromptGuardWindow(t *testing.T) {
	p := NewLoginPrompt()
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	assert.True(t, p.Show("Your session has expired."))
	assert.True(t, p.IsOpen())

	clock = clock.Add(100 * time.Millisecond)
	assert.False(t, p.Open())

	// closing does not reopen the window early
	p.Close()
	clock = clock.Add(100 * time.Millisecond)
	assert.False(t, p.Open())
	assert.False(t, p.IsOpen())

	clock = clock.Add(PromptGuard)
	assert.True(t, p.Open())
	assert.Equal(t, 2, p.Opens())
}

func TestLoginPromptReturnTo(t *testing.T) {
	p := NewLoginPrompt()

	assert.False(t, p.Guard(true, "/checkout"))
	assert.False(t, p.IsOpen())

	assert.True(t, p.Guard(false, "/checkout"))
	assert.True(t, p.IsOpen())
	assert.Equal(t, "/checkout", p.Close())
	assert.False(t, p.IsOpen())
	assert.Empty(t, p.Close())
}

func TestLoginPromptListeners(t *testing.T) {
	p := NewLoginPrompt()
	var states []bool
	p.OnChange(func(open bool) { states = append(states, open) })

	p.Open()
	p.Close()
	p.Close()

	assert.Equal(t, []bool{true, false}, states)
}
