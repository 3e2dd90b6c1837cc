package client

import (
	"sync"
	"time"
)

// PromptGuard is the window in which repeated opens of the login prompt
// are ignored
const PromptGuard = 500 * time.Millisecond

// LoginPrompt is the {closed, open} login modal state machine
type LoginPrompt struct {
	mu        sync.Mutex
	open      bool
	message   string
	returnTo  string
	lastOpen  time.Time
	opens     int
	guard     time.Duration
	now       func() time.Time
	listeners []func(open bool)
}

// NewLoginPrompt returns a closed prompt
func NewLoginPrompt() *LoginPrompt {
	return &LoginPrompt{guard: PromptGuard, now: time.Now}
}

// Open opens the prompt without a message
func (p *LoginPrompt) Open() bool {
	return p.Show("")
}

// Show opens the prompt with message. It returns false when another open
// was accepted less than PromptGuard ago. Closing does not reset the
// window, so 401s still in flight when the user logs back in are absorbed.
func (p *LoginPrompt) Show(message string) bool {
	return p.show(message, "", false)
}

// OpenFor opens the prompt and remembers path so Close can return it
func (p *LoginPrompt) OpenFor(path string) bool {
	return p.show("", path, true)
}

// Guard opens the prompt for path when a protected route finds no session
func (p *LoginPrompt) Guard(isAuthenticated bool, path string) bool {
	if isAuthenticated {
		return false
	}
	return p.OpenFor(path)
}

func (p *LoginPrompt) show(message, returnTo string, setReturn bool) bool {
	p.mu.Lock()
	now := p.now()
	if !p.lastOpen.IsZero() && now.Sub(p.lastOpen) < p.guard {
		p.mu.Unlock()
		return false
	}
	p.lastOpen = now
	p.open = true
	p.opens++
	if message != "" {
		p.message = message
	}
	if setReturn {
		p.returnTo = returnTo
	}
	listeners := append([]func(bool){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(true)
	}
	return true
}

// Close dismisses the prompt and returns the destination recorded by
// OpenFor, if any
func (p *LoginPrompt) Close() string {
	p.mu.Lock()
	wasOpen := p.open
	returnTo := p.returnTo
	p.open = false
	p.message = ""
	p.returnTo = ""
	listeners := append([]func(bool){}, p.listeners...)
	p.mu.Unlock()

	if wasOpen {
		for _, fn := range listeners {
			fn(false)
		}
	}
	return returnTo
}

// IsOpen reports the prompt state
func (p *LoginPrompt) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Message returns the message shown with the prompt
func (p *LoginPrompt) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

// Opens counts accepted opens
func (p *LoginPrompt) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

// OnChange registers fn to run after every state change
func (p *LoginPrompt) OnChange(fn func(open bool)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}
