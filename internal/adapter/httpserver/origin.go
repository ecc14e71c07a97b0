package httpserver

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open /ws. Widgets run inside
// OBS browser sources (obs:// origins) or are served by this process itself.
type originPolicy struct {
	appOrigin  string
	allowLocal bool
}

// NewCheckOrigin builds the upgrader's CheckOrigin from APP_URL. Requests
// without an Origin header are not browser cross-site requests and pass.
func NewCheckOrigin(appURL string, isDevelopment bool) func(r *http.Request) bool {
	p := originPolicy{appOrigin: extractOrigin(appURL), allowLocal: isDevelopment}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if p.allows(origin) {
			return true
		}
		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func (p originPolicy) allows(origin string) bool {
	switch {
	case origin == "", strings.HasPrefix(origin, "obs://"):
		return true
	case p.appOrigin != "" && origin == p.appOrigin:
		return true
	case p.allowLocal:
		return isLoopbackOrigin(origin)
	}
	return false
}

// extractOrigin reduces a URL to scheme://host[:port], or "" if it has no host.
func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
