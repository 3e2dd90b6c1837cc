package client

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/nyambika/marketplace/pkg/config"
)

// UnauthorizedPolicy selects what a 401 does
type UnauthorizedPolicy int

const (
	// PolicyPrompt opens the login prompt
	PolicyPrompt UnauthorizedPolicy = iota
	// PolicyRedirect navigates to the login route
	PolicyRedirect
)

// LoginPath is the route PolicyRedirect navigates to
const LoginPath = "/login"

// Options configure an App
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// TokenFile and CartFile persist state between runs; empty keeps it in memory
	TokenFile   string
	CartFile    string
	Navigator   Navigator
	Notifier    Notifier
	Policy      UnauthorizedPolicy
	LiveUpdates bool
}

// OptionsFromConfig maps the client configuration onto Options
func OptionsFromConfig(cfg *config.ClientConfig) Options {
	return Options{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.HTTPTimeout,
		TokenFile:   cfg.TokenFile,
		CartFile:    cfg.CartFile,
		LiveUpdates: true,
	}
}

// App wires the client stores together. Construct it once, call Init, and
// Close it when done.
type App struct {
	Client       *Client
	Tokens       TokenStore
	Prompt       *LoginPrompt
	Session      *SessionStore
	Cart         *Cart
	Queries      *QueryClient
	Orders       *OrderSync
	Wallet       *WalletView
	Company      *CompanyStore
	Subscription *SubscriptionGate
	Events       *EventStream

	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	eventsActive bool
}

// NewApp builds the stores. Nothing touches the network until Init.
func NewApp(opts Options) *App {
	if opts.Navigator == nil {
		opts.Navigator = &MemoryNavigator{}
	}

	a := &App{opts: opts}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	if opts.TokenFile != "" {
		a.Tokens = NewFileTokenStore(opts.TokenFile)
	} else {
		a.Tokens = NewMemoryTokenStore()
	}
	a.Prompt = NewLoginPrompt()

	// The session is created after the client it depends on
	creds := ClearerFunc(func() error { return a.Session.Clear() })
	var onUnauthorized Middleware
	switch opts.Policy {
	case PolicyRedirect:
		onUnauthorized = RedirectOnUnauthorized(creds, a.Tokens, opts.Navigator, LoginPath)
	default:
		onUnauthorized = PromptOnUnauthorized(creds, a.Tokens, a.Prompt)
	}
	clientOpts := []Option{WithMiddleware(onUnauthorized, BearerAuth(a.Tokens))}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, WithHTTPClient(opts.HTTPClient))
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, WithTimeout(opts.Timeout))
	}
	a.Client = New(opts.BaseURL, clientOpts...)
	a.Session = NewSessionStore(a.Client, a.Tokens, a.Prompt)

	var persister CartPersister
	if opts.CartFile != "" {
		persister = NewFileCartPersister(opts.CartFile)
	}
	cart, err := NewCart(persister)
	if err != nil {
		log.Printf("[CART] Starting with an empty cart: %v", err)
	}
	a.Cart = cart

	a.Queries = NewQueryClient()
	a.Orders = NewOrderSync(a.Client, a.Queries, a.Session)
	a.Wallet = NewWalletView(a.Client, a.Queries, a.Session)
	a.Company = NewCompanyStore(a.Client, opts.Notifier)
	a.Subscription = NewSubscriptionGate(a.Client, a.Queries, a.Session, opts.Navigator)
	a.Events = NewEventStream(a.Client, a.Queries, nil)
	return a
}

// Init restores a persisted session and starts background refreshes. Each
// session change drops cached data, reloads the producer's company and,
// with LiveUpdates, opens the event stream.
func (a *App) Init(ctx context.Context) {
	a.Session.OnChange(a.sessionChanged)
	a.Session.Restore(ctx)
	a.Queries.StartAll(a.ctx)
}

func (a *App) sessionChanged(user *User) {
	if a.ctx.Err() != nil {
		return
	}
	a.Queries.ResetAll()
	a.Subscription.Stop()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Company.Refresh(a.ctx, user); err != nil && a.ctx.Err() == nil {
			log.Printf("[COMPANY] Refresh after session change failed: %v", err)
		}
	}()

	if user == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.Queries.Invalidate(a.ctx, KeyOrders, KeyProducerOrders, KeyProducerStats, KeyWallet, KeySubscriptionStatus)
		if err != nil && a.ctx.Err() == nil {
			log.Printf("[QUERY] Refetch after session change failed: %v", err)
		}
	}()
	if a.opts.LiveUpdates {
		a.startEvents()
	}
}

func (a *App) startEvents() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.eventsActive || a.ctx.Err() != nil {
		return
	}
	a.eventsActive = true

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.Events.Run(a.ctx)
		a.mu.Lock()
		a.eventsActive = false
		a.mu.Unlock()
		if err != nil && a.ctx.Err() == nil {
			log.Printf("[EVENTS] Stream stopped: %v", err)
		}
	}()
}

// Close stops polling, the event stream and pending redirects, then waits
// for background work
func (a *App) Close() {
	a.cancel()
	a.Subscription.Stop()
	a.Queries.Close()
	a.wg.Wait()
}

// MemoryNavigator records navigation for headless use and tests
type MemoryNavigator struct {
	mu      sync.Mutex
	path    string
	history []string
}

// Path returns the current route
func (n *MemoryNavigator) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// Navigate moves to path
func (n *MemoryNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.history = append(n.history, path)
}

// History returns every route navigated to
func (n *MemoryNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}
