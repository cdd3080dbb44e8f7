package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"
)

const OpsTokenHeader = "X-Ops-Token"

type OpsGuardOptions struct {
	// Enforce turns the guard on. Disabled guards pass every request.
	Enforce bool
	// OpenPaths are served without credentials.
	OpenPaths     []string
	CIDRs         []netip.Prefix
	Token         string
	BasicAuthUser string
	BasicAuthPass string
	RealIPHeader  string
}

type credentialCheck func(r *http.Request) bool

// OpsGuard hides guarded ops routes behind a CIDR allowlist, a bearer token
// or basic auth. Unauthorized callers get 404.
func OpsGuard(opts OpsGuardOptions) mux.MiddlewareFunc {
	if !opts.Enforce {
		return func(next http.Handler) http.Handler { return next }
	}
	open := make(map[string]struct{}, len(opts.OpenPaths))
	for _, p := range opts.OpenPaths {
		open[p] = struct{}{}
	}
	checks := opts.checks()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			for _, check := range checks {
				if check(r) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.NotFound(w, r)
		})
	}
}

func (o OpsGuardOptions) checks() []credentialCheck {
	var checks []credentialCheck
	if len(o.CIDRs) > 0 {
		cidrs, header := o.CIDRs, o.RealIPHeader
		checks = append(checks, func(r *http.Request) bool {
			addr, ok := clientAddr(r, header)
			if !ok {
				return false
			}
			for _, p := range cidrs {
				if p.Contains(addr) {
					return true
				}
			}
			return false
		})
	}
	if token := strings.TrimSpace(o.Token); token != "" {
		checks = append(checks, func(r *http.Request) bool {
			return equal(bearerToken(r), token)
		})
	}
	if user, pass := o.BasicAuthUser, o.BasicAuthPass; strings.TrimSpace(user) != "" || strings.TrimSpace(pass) != "" {
		checks = append(checks, func(r *http.Request) bool {
			u, p, ok := r.BasicAuth()
			return ok && equal(u, user) && equal(p, pass)
		})
	}
	return checks
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ParseCIDRs splits a comma, semicolon or whitespace separated allowlist.
func ParseCIDRs(raw string) ([]netip.Prefix, error) {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]netip.Prefix, 0, len(parts))
	for _, part := range parts {
		p, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, errors.Wrapf(err, "ops guard cidr %q", part)
		}
		out = append(out, p)
	}
	return out, nil
}

func bearerToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(OpsTokenHeader)); t != "" {
		return t
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

// clientAddr prefers the first hop of the configured proxy header.
func clientAddr(r *http.Request, header string) (netip.Addr, bool) {
	raw := r.RemoteAddr
	if header != "" {
		if v := r.Header.Get(header); strings.TrimSpace(v) != "" {
			raw, _, _ = strings.Cut(v, ",")
		}
	}
	raw = strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}
