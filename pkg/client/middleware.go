package client

import (
	"log"
	"net/http"
	"strings"
)

// SessionExpiredMessage is shown by the login prompt after a 401
const SessionExpiredMessage = "Your session has expired. Please log in again."

// Clearer drops persisted credentials. TokenStore and SessionStore both
// satisfy it.
type Clearer interface {
	Clear() error
}

// ClearerFunc adapts a function to Clearer
type ClearerFunc func() error

// Clear calls f()
func (f ClearerFunc) Clear() error { return f() }

// Navigator is the routing surface the client drives
type Navigator interface {
	Path() string
	Navigate(path string)
}

// Prompter opens the login prompt
type Prompter interface {
	Show(message string) bool
}

// BearerAuth attaches Authorization: Bearer <token> when store holds a token
func BearerAuth(store TokenStore) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			token, err := store.Token()
			if err != nil {
				log.Printf("[CLIENT] Could not read token: %v", err)
			}
			if token != "" {
				req = req.Clone(req.Context())
				req.Header.Set("Authorization", "Bearer "+token)
			}
			return next.Do(req)
		})
	}
}

// RedirectOnUnauthorized clears credentials and navigates to loginPath on a
// 401. A failed login request is left to its caller, and nothing happens
// when the navigator is already on loginPath. A 401 for a token that tokens
// no longer holds is returned untouched.
func RedirectOnUnauthorized(creds Clearer, tokens TokenStore, nav Navigator, loginPath string) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.Do(req)
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}
			if strings.Contains(req.URL.Path, "/api/auth/login") || staleCredentials(tokens, req, resp) {
				return resp, nil
			}
			if cerr := creds.Clear(); cerr != nil {
				log.Printf("[CLIENT] Could not clear credentials: %v", cerr)
			}
			if nav.Path() != loginPath {
				nav.Navigate(loginPath)
			}
			return resp, nil
		})
	}
}

// PromptOnUnauthorized clears credentials and opens the login prompt on a
// 401 from any endpoint outside /api/auth/. A 401 for a token that tokens
// no longer holds is returned untouched.
func PromptOnUnauthorized(creds Clearer, tokens TokenStore, prompt Prompter) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.Do(req)
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}
			if isAuthEndpoint(req.URL.Path) || staleCredentials(tokens, req, resp) {
				return resp, nil
			}
			if cerr := creds.Clear(); cerr != nil {
				log.Printf("[CLIENT] Could not clear credentials: %v", cerr)
			}
			prompt.Show(SessionExpiredMessage)
			return resp, nil
		})
	}
}

// staleCredentials reports whether the rejected request carried a token
// other than the one tokens holds now, as when a request sent before a
// login fails after it. resp.Request is the request as sent, after
// BearerAuth set the header.
func staleCredentials(tokens TokenStore, req *http.Request, resp *http.Response) bool {
	if tokens == nil {
		return false
	}
	sent := req
	if resp.Request != nil {
		sent = resp.Request
	}
	current, err := tokens.Token()
	if err != nil {
		return false
	}
	if normalizeToken(bearerToken(sent)) == current {
		return false
	}
	log.Printf("[CLIENT] Ignoring 401 for %s %s, sent with a replaced token", req.Method, req.URL.Path)
	return true
}

func bearerToken(req *http.Request) string {
	return strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
}

func isAuthEndpoint(path string) bool {
	return strings.Contains(path, "/api/auth/") ||
		strings.Contains(path, "/api/signin") ||
		strings.Contains(path, "/api/signout")
}
