package grab

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGoFollowsRedirectPreservingMethodAndBody(t *testing.T) {
	var finalMethod string
	var finalBody []byte

	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		finalMethod = r.Method
		finalBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient()
	req, err := NewRequest(http.MethodPost, srv.URL+"/start").Body([]byte("payload")).Build()
	require.NoError(t, err)

	doc, err := client.Go(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doc.StatusCode)
	assert.Equal(t, http.MethodPost, finalMethod)
	assert.Equal(t, "payload", string(finalBody))
	assert.True(t, doc.HasValidHTML())
}

func TestClientGoTooManyRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient()
	req, err := NewRequest(http.MethodGet, srv.URL+"/loop").RedirectLimit(2).Build()
	require.NoError(t, err)

	_, err = client.Go(context.Background(), req)
	require.Error(t, err)
	var tooMany *TooManyRedirectsError
	assert.ErrorAs(t, err, &tooMany)
}

func TestClientGoUnsupportedScheme(t *testing.T) {
	client := NewClient()
	req, err := NewRequest(http.MethodGet, "ftp://example.com/file").Build()
	require.NoError(t, err)

	_, err = client.Go(context.Background(), req)
	require.Error(t, err)
	var fatal *FatalError
	assert.ErrorAs(t, err, &fatal)
}

func TestClientGoReusesCookiesAcrossRequests(t *testing.T) {
	hits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/set", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil && c.Value == "abc" {
			hits++
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient()

	req1, err := NewRequest(http.MethodGet, srv.URL+"/set").Build()
	require.NoError(t, err)
	_, err = client.Go(context.Background(), req1)
	require.NoError(t, err)

	req2, err := NewRequest(http.MethodGet, srv.URL+"/check").Build()
	require.NoError(t, err)
	_, err = client.Go(context.Background(), req2)
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
}

func TestClientCloneHasIndependentJar(t *testing.T) {
	client := NewClient()
	client.Jar().Put(Cookie{Name: "a", Domain: "example.com", Path: "/"})

	clone := client.Clone()
	assert.Empty(t, clone.Jar().All())
	assert.Len(t, client.Jar().All(), 1)
}

func TestClientSetupRejectsUnknownKey(t *testing.T) {
	client := NewClient()
	err := client.Setup(map[string]any{"bogus": true})
	require.Error(t, err)
	var misuse *MisuseError
	assert.ErrorAs(t, err, &misuse)
}

func TestMarshalAndBuildClientRoundTripsCookies(t *testing.T) {
	client := NewClient()
	client.Jar().Put(Cookie{Name: "sid", Value: "abc", Domain: "example.com", Path: "/"})

	state, err := client.MarshalState()
	require.NoError(t, err)

	rebuilt, err := BuildClient(state)
	require.NoError(t, err)
	assert.Len(t, rebuilt.Jar().All(), 1)
}
