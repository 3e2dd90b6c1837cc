package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLogin(t *testing.T) {
	f := newFakeBackend(t)
	c, tokens := newTestClient(f, "")
	prompt := NewLoginPrompt()
	prompt.Open()
	s := NewSessionStore(c, tokens, prompt)

	var seen []*User
	s.OnChange(func(u *User) { seen = append(seen, u) })

	user, err := s.Login(context.Background(), "customer@demo.com", "password")
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, user.Role)
	assert.True(t, s.IsAuthenticated())
	assert.True(t, s.HasRole(RoleCustomer))
	assert.False(t, prompt.IsOpen())

	tok, err := tokens.Token()
	require.NoError(t, err)
	assert.Equal(t, tokenFor(user.ID), tok)

	var me User
	require.NoError(t, c.Get(context.Background(), "/api/auth/me", &me))
	assert.Equal(t, user.ID, me.ID)

	require.Len(t, seen, 1)
	assert.Equal(t, user.ID, seen[0].ID)

	s.Logout()
	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
	tok, _ = tokens.Token()
	assert.Empty(t, tok)
	require.Len(t, seen, 2)
	assert.Nil(t, seen[1])
}

func TestSessionLoginRejected(t *testing.T) {
	f := newFakeBackend(t)
	c, tokens := newTestClient(f, "")
	s := NewSessionStore(c, tokens, nil)

	_, err := s.Login(context.Background(), "customer@demo.com", "wrong")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "Invalid credentials")
	assert.False(t, s.IsAuthenticated())
}

func TestSessionRegister(t *testing.T) {
	f := newFakeBackend(t)
	c, tokens := newTestClient(f, "")
	s := NewSessionStore(c, tokens, nil)

	user, err := s.Register(context.Background(), RegisterRequest{Email: "new@demo.com", Password: "secret1", Name: "New", Role: RoleProducer})
	require.NoError(t, err)
	assert.True(t, s.HasRole(RoleProducer))
	tok, _ := tokens.Token()
	assert.Equal(t, tokenFor(user.ID), tok)

	_, err = s.Register(context.Background(), RegisterRequest{Email: "new@demo.com", Password: "secret1", Name: "New"})
	assert.Equal(t, 400, StatusCode(err))
}

func TestSessionRestore(t *testing.T) {
	f := newFakeBackend(t)

	t.Run("valid token", func(t *testing.T) {
		c, tokens := newTestClient(f, `"`+tokenFor("u-producer")+`"`)
		s := NewSessionStore(c, tokens, nil)
		s.Restore(context.Background())
		assert.True(t, s.HasRole(RoleProducer))
	})

	t.Run("invalid token is dropped silently", func(t *testing.T) {
		c, tokens := newTestClient(f, "stale")
		s := NewSessionStore(c, tokens, nil)
		s.Restore(context.Background())
		assert.False(t, s.IsAuthenticated())
		tok, _ := tokens.Token()
		assert.Empty(t, tok)
	})

	t.Run("no token makes no request", func(t *testing.T) {
		before := f.hit("GET /api/auth/me")
		c, tokens := newTestClient(f, "")
		NewSessionStore(c, tokens, nil).Restore(context.Background())
		assert.Equal(t, before, f.hit("GET /api/auth/me"))
	})
}

func TestSessionSetSession(t *testing.T) {
	f := newFakeBackend(t)
	c, tokens := newTestClient(f, "")
	s := NewSessionStore(c, tokens, nil)

	user, err := s.SetSession(context.Background(), tokenFor("u-customer"), nil)
	require.NoError(t, err)
	assert.Equal(t, "u-customer", user.ID)

	_, err = s.SetSession(context.Background(), "bogus", nil)
	require.Error(t, err)
	tok, _ := tokens.Token()
	assert.Empty(t, tok)
}
