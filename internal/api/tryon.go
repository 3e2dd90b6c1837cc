package api

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/nyambika/marketplace/internal/middleware"
)

// NewTryOnProxy forwards /api/tryon/* to the external try-on API with the
// /api/tryon prefix removed. An empty target yields a 503 handler.
func NewTryOnProxy(target string) http.Handler {
	if target == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middleware.WriteMessage(w, http.StatusServiceUnavailable, "Try-on service is not configured")
		})
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		log.Printf("[TRYON] Invalid TRYON_API_URL %q: %v", target, err)
		return NewTryOnProxy("")
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			rest := strings.TrimPrefix(pr.In.URL.Path, "/api/tryon")
			pr.Out.URL.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(rest, "/")
			pr.Out.URL.RawPath = ""
			pr.Out.Host = u.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Printf("[TRYON] Upstream error for %s: %v", r.URL.Path, err)
			middleware.WriteMessage(w, http.StatusBadGateway, "Try-on service unavailable")
		},
	}
}
