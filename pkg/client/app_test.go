package client

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppRestoresPersistedSession(t *testing.T) {
	f := newFakeBackend(t)
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte(`"`+tokenFor("u-producer")+`"`), 0o600))

	nav := &MemoryNavigator{}
	app := NewApp(Options{
		BaseURL:   f.URL(),
		TokenFile: tokenFile,
		CartFile:  filepath.Join(dir, "cart.json"),
		Navigator: nav,
	})
	app.Subscription.settle = 10 * time.Millisecond
	defer app.Close()

	app.Init(context.Background())
	require.True(t, app.Session.IsAuthenticated())
	assert.True(t, app.Session.HasRole(RoleProducer))

	// a producer without a company gets the creation modal
	require.Eventually(t, app.Company.IsMissing, time.Second, 5*time.Millisecond)
	assert.True(t, app.Company.ModalOpen())

	// and without a subscription is sent to buy one
	require.Eventually(t, func() bool { return nav.Path() == SubscriptionPath }, time.Second, 5*time.Millisecond)

	app.Session.Logout()
	assert.False(t, app.Session.IsAuthenticated())
	require.Eventually(t, func() bool { return !app.Company.IsMissing() }, time.Second, 5*time.Millisecond)
	_, err := os.Stat(tokenFile)
	assert.True(t, os.IsNotExist(err))
}

func TestAppPromptsOnExpiredSession(t *testing.T) {
	f := newFakeBackend(t)
	app := NewApp(Options{BaseURL: f.URL()})
	defer app.Close()

	_, err := app.Session.Login(context.Background(), "customer@demo.com", "password")
	require.NoError(t, err)
	require.NoError(t, app.Tokens.SetToken("tok-revoked"))

	_, err = app.Orders.CustomerOrders(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.False(t, app.Session.IsAuthenticated())
	assert.True(t, app.Prompt.IsOpen())
	assert.Equal(t, SessionExpiredMessage, app.Prompt.Message())
}

func TestAppKeepsSessionOnLateUnauthorized(t *testing.T) {
	f := newFakeBackend(t)
	release := make(chan struct{})
	f.hook("GET /api/wallet", func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid token"})
	})
	app := NewApp(Options{BaseURL: f.URL()})
	defer app.Close()
	require.NoError(t, app.Tokens.SetToken("stale"))

	done := make(chan error, 1)
	go func() { done <- app.Client.Get(context.Background(), "/api/wallet", nil) }()
	require.Eventually(t, func() bool { return f.hit("GET /api/wallet") == 1 }, time.Second, time.Millisecond)

	_, err := app.Session.Login(context.Background(), "customer@demo.com", "password")
	require.NoError(t, err)
	close(release)
	assert.True(t, IsUnauthorized(<-done))

	// the 401 belongs to the replaced token, so the new session survives
	assert.True(t, app.Session.IsAuthenticated())
	tok, _ := app.Tokens.Token()
	assert.Equal(t, tokenFor("u-customer"), tok)
	assert.False(t, app.Prompt.IsOpen())
	assert.Zero(t, app.Prompt.Opens())
}

func TestAppKeepsCartAcrossRuns(t *testing.T) {
	f := newFakeBackend(t)
	cartFile := filepath.Join(t.TempDir(), "cart.json")

	first := NewApp(Options{BaseURL: f.URL(), CartFile: cartFile})
	require.NoError(t, first.Cart.Add(CartItem{ProductID: "p1", Name: "Kitenge", Price: decimal.NewFromInt(8000)}, 2))
	first.Close()

	second := NewApp(Options{BaseURL: f.URL(), CartFile: cartFile})
	defer second.Close()
	assert.Equal(t, 2, second.Cart.Count())
	assert.True(t, decimal.NewFromInt(16000).Equal(second.Cart.Subtotal()))
}
