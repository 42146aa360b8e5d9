package grab

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBuilderDefaults(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "https://example.com").Build()
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, 5, req.RedirectLimit)
	assert.True(t, req.ReuseCookies)
}

func TestRequestBuilderNoURLIsMisuse(t *testing.T) {
	_, err := NewRequest(http.MethodGet, "").Build()
	require.Error(t, err)
	var misuse *MisuseError
	assert.ErrorAs(t, err, &misuse)
}

func TestRequestBuilderDefaultMethodIsGet(t *testing.T) {
	req, err := NewRequest("", "https://example.com").Build()
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
}

func TestWithConfigAppliesKnownKeys(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "https://example.com").
		WithConfig(map[string]any{
			"timeout":        2 * time.Second,
			"redirect_limit": 1,
			"user_agent":     "vireo-test",
		}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, req.Timeout)
	assert.Equal(t, 1, req.RedirectLimit)
	assert.Equal(t, "vireo-test", req.UserAgent)
}

func TestWithConfigRejectsUnknownKey(t *testing.T) {
	_, err := NewRequest(http.MethodGet, "https://example.com").
		WithConfig(map[string]any{"totally_made_up": true}).
		Build()
	require.Error(t, err)
	var misuse *MisuseError
	assert.ErrorAs(t, err, &misuse)
}

func TestRequestCloneIsIndependent(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "https://example.com").Header("X-A", "1").Build()
	require.NoError(t, err)

	clone := req.clone()
	clone.Headers.Set("X-A", "2")

	assert.Equal(t, "1", req.Headers.Get("X-A"))
	assert.Equal(t, "2", clone.Headers.Get("X-A"))
}

func TestMergeHeadersNoReplaceKeepsExisting(t *testing.T) {
	dst := http.Header{"X-A": []string{"orig"}}
	src := http.Header{"X-A": []string{"new"}, "X-B": []string{"added"}}
	out := MergeHeaders(dst, src, false)
	assert.Equal(t, "orig", out.Get("X-A"))
	assert.Equal(t, "added", out.Get("X-B"))
}

func TestMergeHeadersReplaceOverwrites(t *testing.T) {
	dst := http.Header{"X-A": []string{"orig"}}
	src := http.Header{"X-A": []string{"new"}}
	out := MergeHeaders(dst, src, true)
	assert.Equal(t, "new", out.Get("X-A"))
}
