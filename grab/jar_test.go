package grab

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestJarSetAndGetCookies(t *testing.T) {
	jar := NewJar()
	u := mustURL(t, "https://example.com/path")
	jar.SetCookies(u, []*http.Cookie{{Name: "sid", Value: "abc"}})

	got := jar.Cookies(u)
	require.Len(t, got, 1)
	assert.Equal(t, "sid", got[0].Name)
	assert.Equal(t, "abc", got[0].Value)
}

func TestJarCookieScopedToUnrelatedHostIsWithheld(t *testing.T) {
	jar := NewJar()
	jar.Put(Cookie{Name: "sid", Value: "abc", Domain: "example.com", Path: "/"})

	other := mustURL(t, "https://other.com/")
	assert.Empty(t, jar.Cookies(other))
}

func TestJarSubdomainInheritsParentCookie(t *testing.T) {
	jar := NewJar()
	jar.Put(Cookie{Name: "sid", Value: "abc", Domain: "example.com", Path: "/"})

	sub := mustURL(t, "https://api.example.com/")
	assert.Len(t, jar.Cookies(sub), 1)
}

func TestJarSecureCookieWithheldFromPlainHTTP(t *testing.T) {
	jar := NewJar()
	jar.Put(Cookie{Name: "sid", Value: "abc", Domain: "example.com", Path: "/", Secure: true})

	plain := mustURL(t, "http://example.com/")
	assert.Empty(t, jar.Cookies(plain))

	secure := mustURL(t, "https://example.com/")
	assert.Len(t, jar.Cookies(secure), 1)
}

func TestJarExpiredCookieIsWithheld(t *testing.T) {
	jar := NewJar()
	jar.Put(Cookie{Name: "sid", Value: "abc", Domain: "example.com", Path: "/", Expires: time.Now().Add(-time.Hour)})

	u := mustURL(t, "https://example.com/")
	assert.Empty(t, jar.Cookies(u))
}

func TestJarMaxAgeNegativeDeletesCookie(t *testing.T) {
	jar := NewJar()
	u := mustURL(t, "https://example.com/")
	jar.SetCookies(u, []*http.Cookie{{Name: "sid", Value: "abc"}})
	require.Len(t, jar.Cookies(u), 1)

	jar.SetCookies(u, []*http.Cookie{{Name: "sid", Value: "", MaxAge: -1}})
	assert.Empty(t, jar.Cookies(u))
}

func TestJarClearByDomain(t *testing.T) {
	jar := NewJar()
	jar.Put(Cookie{Name: "a", Domain: "example.com", Path: "/"})
	jar.Put(Cookie{Name: "b", Domain: "other.com", Path: "/"})

	jar.Clear("example.com")

	assert.Len(t, jar.All(), 1)
	assert.Equal(t, "b", jar.All()[0].Name)
}

func TestPathMatches(t *testing.T) {
	assert.True(t, pathMatches("/a/b", "/a"))
	assert.True(t, pathMatches("/a", "/a"))
	assert.False(t, pathMatches("/ab", "/a"))
	assert.True(t, pathMatches("/a/b", "/"))
}
