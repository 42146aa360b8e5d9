package grab

import (
	"net/http"
	"strings"
	"time"
)

// Cookie is a jar entry. Unlike net/http.Cookie it always carries the
// domain and path it was scoped to, since Jar keys entries on
// (Domain, Path, Name) rather than relying on a single request URL.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HttpOnly bool
}

// Expired reports whether the cookie's Expires time has passed. A zero
// Expires means a session cookie, which never expires on its own.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && c.Expires.Before(now)
}

func (c Cookie) key() cookieKey {
	return cookieKey{domain: strings.ToLower(strings.TrimPrefix(c.Domain, ".")), path: normalizePath(c.Path), name: c.Name}
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// fromHTTPCookie builds a Cookie scoped to host when the Set-Cookie
// header itself carried no explicit Domain/Path attribute.
func fromHTTPCookie(hc *http.Cookie, host string) Cookie {
	domain := hc.Domain
	if domain == "" {
		domain = host
	}
	return Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   domain,
		Path:     normalizePath(hc.Path),
		Expires:  hc.Expires,
		Secure:   hc.Secure,
		HttpOnly: hc.HttpOnly,
	}
}
