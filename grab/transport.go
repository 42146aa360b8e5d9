package grab

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"
)

// Transport performs one HTTP round trip for r and returns the raw
// *http.Response. It is the seam Client.Go dials through, so tests can
// substitute a fake without spinning up a listener.
type Transport interface {
	Do(ctx context.Context, r *Request) (*http.Response, error)
}

// HTTPTransport is the production Transport: it builds a *http.Client
// scoped to each Request's proxy and timeout settings. http:// and
// https:// proxies go through the standard library's Transport.Proxy;
// socks5:// proxies dial through golang.org/x/net/proxy, which net/http
// has no native support for.
type HTTPTransport struct{}

// NewHTTPTransport returns the default production Transport.
func NewHTTPTransport() *HTTPTransport { return &HTTPTransport{} }

func (t *HTTPTransport) Do(ctx context.Context, r *Request) (*http.Response, error) {
	client, err := buildHTTPClient(r)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bodyReader(r.Body))
	if err != nil {
		return nil, NewMisuseError("building request: %v", err)
	}
	httpReq.Header = MergeHeaders(make(http.Header), r.Headers, true)
	if r.UserAgent != "" {
		httpReq.Header.Set("User-Agent", r.UserAgent)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, NewTransportError(r.Method+" "+r.URL, err)
	}
	return resp, nil
}

// buildHTTPClient constructs a *http.Client scoped to a single Request's
// proxy and timeout settings. Building one per request (rather than
// reusing a shared client) keeps per-task proxy overrides from leaking
// across tasks in the worker pool.
func buildHTTPClient(r *Request) (*http.Client, error) {
	dialer := &net.Dialer{Timeout: r.ConnectTimeout}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
	}

	if r.Proxy != "" {
		proxyURL, err := url.Parse(r.Proxy)
		if err != nil {
			return nil, NewMisuseError("invalid proxy URL %q: %v", r.Proxy, err)
		}
		switch proxyURL.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)
		case "socks5", "socks5h":
			socksDialer, err := proxy.FromURL(proxyURL, dialer)
			if err != nil {
				return nil, NewTransportError("proxy dial setup", err)
			}
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return socksDialer.Dial(network, addr)
			}
		default:
			return nil, NewMisuseError("unsupported proxy scheme %q", proxyURL.Scheme)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   r.Timeout,
		// The client must not follow redirects itself: Client.Go drives
		// the redirect loop so it can preserve method/body per hop and
		// enforce RedirectLimit on its own terms.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

func isSchemeSupported(rawurl string) bool {
	u, err := url.Parse(rawurl)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
