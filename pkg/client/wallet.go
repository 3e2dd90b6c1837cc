package client

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// KeyWallet is the wallet cache key
const KeyWallet = "wallet"

// WalletStaleTime is how long a wallet balance is served from cache
const WalletStaleTime = 60 * time.Second

var rwfPrinter = message.NewPrinter(language.English)

// FormatRWF renders an amount as "RWF 12,500", rounded to whole francs
func FormatRWF(amount decimal.Decimal) string {
	return rwfPrinter.Sprintf("RWF %d", amount.Round(0).IntPart())
}

// WalletView is the read-only wallet balance. Balances only change on the
// server.
type WalletView struct {
	query *Query[Wallet]
}

// NewWalletView registers the wallet query with qc. It is enabled whenever
// someone is signed in.
func NewWalletView(c *Client, qc *QueryClient, session *SessionStore) *WalletView {
	q := NewQuery(qc, KeyWallet, func(ctx context.Context) (Wallet, error) {
		var w Wallet
		err := c.Get(ctx, "/api/wallet", &w)
		return w, err
	}, QueryOptions{
		StaleTime: WalletStaleTime,
		Retry:     1,
		Enabled:   func() bool { return session == nil || session.IsAuthenticated() },
	})
	return &WalletView{query: q}
}

// Wallet returns the cached wallet, fetching when stale
func (v *WalletView) Wallet(ctx context.Context) (Wallet, error) {
	return v.query.Get(ctx)
}

// Balance returns the wallet balance
func (v *WalletView) Balance(ctx context.Context) (decimal.Decimal, error) {
	w, err := v.query.Get(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// Formatted returns the balance for display
func (v *WalletView) Formatted(ctx context.Context) (string, error) {
	balance, err := v.Balance(ctx)
	if err != nil {
		return "", err
	}
	return FormatRWF(balance), nil
}

// Query exposes the underlying query for polling and subscriptions
func (v *WalletView) Query() *Query[Wallet] {
	return v.query
}
