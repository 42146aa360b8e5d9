package grab

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

type cookieKey struct {
	domain string
	path   string
	name   string
}

// Jar is an RFC-6265-ish cookie store keyed by (domain, path, name), so
// inserting a cookie that matches an existing key replaces it rather than
// appending a duplicate. It is distinct from net/http/cookiejar: that
// implementation is keyed per public-suffix-eTLD+1 bucket internally and
// does not expose a way to list or clear cookies scoped to a single
// domain, both of which Client.clear_cookies / Spider diagnostics need.
type Jar struct {
	mu      sync.RWMutex
	cookies map[cookieKey]Cookie
}

// NewJar returns an empty Jar.
func NewJar() *Jar {
	return &Jar{cookies: make(map[cookieKey]Cookie)}
}

// SetCookies stores cookies received in response to a request for u,
// filling in Domain from u's host and Path as "/" when the cookie's own
// attributes are empty, and dropping any cookie whose Domain does not
// cover u's host.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, hc := range cookies {
		c := fromHTTPCookie(hc, u.Hostname())
		if !domainMatches(u.Hostname(), c.Domain) {
			continue
		}
		if hc.MaxAge < 0 {
			delete(j.cookies, c.key())
			continue
		}
		j.cookies[c.key()] = c
	}
}

// Put inserts or replaces a single cookie directly, bypassing the
// domain-match check SetCookies performs against a request URL. Used when
// restoring a Jar from ClientState.
func (j *Jar) Put(c Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies[c.key()] = c
}

// Cookies returns the cookies that apply to a request for u: domain
// covers u's host, path is a prefix of u's path, not expired, and Secure
// cookies are withheld from a non-TLS URL.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()

	now := time.Now()
	var out []*http.Cookie
	for _, c := range j.cookies {
		if c.Expired(now) {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		if !domainMatches(u.Hostname(), c.Domain) {
			continue
		}
		if !pathMatches(u.Path, c.Path) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// All returns every cookie currently held, for Client.MarshalState.
func (j *Jar) All() []Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		out = append(out, c)
	}
	return out
}

// Clear removes every cookie scoped to domain, or every cookie in the
// jar when domain is empty. Mirrors grab.py's clear_cookies(domain=None).
func (j *Jar) Clear(domain string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if domain == "" {
		j.cookies = make(map[cookieKey]Cookie)
		return
	}
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	for k := range j.cookies {
		if k.domain == domain {
			delete(j.cookies, k)
		}
	}
}

// domainMatches reports whether a cookie scoped to cookieDomain may be
// sent to host, honoring the public suffix list so a cookie set for
// "example.com" is never sent to an unrelated sibling registered under
// the same public suffix (e.g. two distinct "*.github.io" sites).
func domainMatches(host, cookieDomain string) bool {
	host = strings.ToLower(host)
	cookieDomain = strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	if host == cookieDomain {
		return true
	}
	if !strings.HasSuffix(host, "."+cookieDomain) {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(cookieDomain)
	if icann && cookieDomain == suffix {
		return false
	}
	return true
}

func pathMatches(requestPath, cookiePath string) bool {
	requestPath = normalizePath(requestPath)
	cookiePath = normalizePath(cookiePath)
	if requestPath == cookiePath {
		return true
	}
	if strings.HasPrefix(requestPath, cookiePath) {
		if strings.HasSuffix(cookiePath, "/") {
			return true
		}
		return strings.HasPrefix(requestPath[len(cookiePath):], "/")
	}
	return false
}
