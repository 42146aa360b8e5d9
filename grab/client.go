package grab

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// clientConfigKeys is the closed set of keys Setup accepts, the
// Go-native equivalent of the source's self.config whitelist.
var clientConfigKeys = map[string]struct{}{
	"user_agent":      {},
	"reuse_cookies":   {},
	"redirect_limit":  {},
	"timeout":         {},
	"connect_timeout": {},
	"proxy":           {},
}

// Client is the request engine: one Transport, one cookie Jar, and a
// baseline configuration merged into every Request before it is sent.
// A Client is safe for concurrent use by multiple spider workers.
type Client struct {
	mu        sync.RWMutex
	transport Transport
	jar       *Jar

	userAgent      string
	reuseCookies   bool
	redirectLimit  int
	timeout        time.Duration
	connectTimeout time.Duration
	proxy          string
}

// NewClient returns a Client with the source's defaults: cookies reused
// across requests, a 5-hop redirect limit, and the stdlib HTTPTransport.
func NewClient() *Client {
	return &Client{
		transport:      NewHTTPTransport(),
		jar:            NewJar(),
		reuseCookies:   true,
		redirectLimit:  5,
		timeout:        30 * time.Second,
		connectTimeout: 10 * time.Second,
	}
}

// Setup merges cfg into the Client's baseline configuration. Unknown
// keys are a MisuseError: a typo here should fail loudly, not be
// silently dropped the way a plain map assignment would.
func (c *Client) Setup(cfg map[string]any) error {
	for key := range cfg {
		if _, ok := clientConfigKeys[key]; !ok {
			return NewMisuseError("unknown client config key %q", key)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := cfg["user_agent"].(string); ok {
		c.userAgent = v
	}
	if v, ok := cfg["reuse_cookies"].(bool); ok {
		c.reuseCookies = v
	}
	// float64 is what encoding/json yields for numbers in a ClientState.
	switch v := cfg["redirect_limit"].(type) {
	case int:
		c.redirectLimit = v
	case float64:
		c.redirectLimit = int(v)
	}
	switch v := cfg["timeout"].(type) {
	case time.Duration:
		c.timeout = v
	case float64:
		c.timeout = time.Duration(v)
	}
	switch v := cfg["connect_timeout"].(type) {
	case time.Duration:
		c.connectTimeout = v
	case float64:
		c.connectTimeout = time.Duration(v)
	}
	if v, ok := cfg["proxy"].(string); ok {
		c.proxy = v
	}
	return nil
}

// Clone returns a new Client with the same baseline configuration and
// Transport but its own Jar, matching grab.py's clone() semantics: a
// spider worker clones a template Client per task so cookies picked up
// mid-crawl on one task never bleed into a sibling task's session.
func (c *Client) Clone() *Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Client{
		transport:      c.transport,
		jar:            NewJar(),
		userAgent:      c.userAgent,
		reuseCookies:   c.reuseCookies,
		redirectLimit:  c.redirectLimit,
		timeout:        c.timeout,
		connectTimeout: c.connectTimeout,
		proxy:          c.proxy,
	}
}

// Jar returns the Client's cookie jar.
func (c *Client) Jar() *Jar { return c.jar }

// ClearCookies removes cookies scoped to domain, or every cookie when
// domain is empty.
func (c *Client) ClearCookies(domain string) { c.jar.Clear(domain) }

func (c *Client) prepare(req *Request) *Request {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := req.clone()
	if out.RedirectLimit == 0 {
		out.RedirectLimit = c.redirectLimit
	}
	if out.Timeout == 0 {
		out.Timeout = c.timeout
	}
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = c.connectTimeout
	}
	if out.Proxy == "" {
		out.Proxy = c.proxy
	}
	if out.UserAgent == "" {
		out.UserAgent = c.userAgent
	}
	if !c.reuseCookies {
		out.ReuseCookies = false
	}
	return out
}

// Go sends req, following redirects up to req.RedirectLimit (falling
// back to the Client's configured limit when req leaves it zero), and
// returns the final Document. Method and body are preserved across every
// redirect status code (301, 302, 303, 307, 308): this is a deliberate
// departure from browser behavior, where 301/302/303 downgrade POST to
// GET. Crawling wants the original request replayed, not silently
// mutated, so every hop keeps the method the caller asked for.
func (c *Client) Go(ctx context.Context, req *Request) (*Document, error) {
	current := c.prepare(req)

	for hop := 0; ; hop++ {
		if hop > current.RedirectLimit {
			return nil, &TooManyRedirectsError{Limit: current.RedirectLimit, URL: current.URL}
		}
		if !isSchemeSupported(current.URL) {
			return nil, NewFatalError(NewMisuseError("unsupported URL scheme in %q", current.URL))
		}

		reqURL, err := url.Parse(current.URL)
		if err != nil {
			return nil, NewFatalError(NewMisuseError("invalid URL %q: %v", current.URL, err))
		}

		if current.ReuseCookies {
			c.attachCookies(current, reqURL)
		}

		resp, err := c.transport.Do(ctx, current)
		if err != nil {
			return nil, err
		}

		doc, err := c.readResponse(reqURL, resp)
		if err != nil {
			return nil, err
		}

		if current.ReuseCookies {
			c.jar.SetCookies(reqURL, resp.Cookies())
		}

		redirectURL, ok := findRedirectURL(reqURL, resp)
		if !ok {
			return doc, nil
		}

		next := current.clone()
		next.URL = redirectURL.String()
		current = next
	}
}

func (c *Client) attachCookies(req *Request, u *url.URL) {
	cookies := c.jar.Cookies(u)
	if len(cookies) == 0 {
		return
	}
	var b strings.Builder
	for i, ck := range cookies {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ck.Name)
		b.WriteByte('=')
		b.WriteString(ck.Value)
	}
	req.Headers.Set("Cookie", b.String())
}

func (c *Client) readResponse(reqURL *url.URL, resp *http.Response) (*Document, error) {
	defer resp.Body.Close()
	body, err := readAllLimited(resp.Body)
	if err != nil {
		return nil, NewTransportError("reading body", err)
	}
	doc := &Document{
		URL:        reqURL,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}
	for _, hc := range resp.Cookies() {
		doc.Cookies = append(doc.Cookies, fromHTTPCookie(hc, reqURL.Hostname()))
	}
	return doc, nil
}

// findRedirectURL reports the absolute URL of resp's Location header
// when resp is a redirect status, resolved against the URL it was
// requested from. Mirrors grab.py's find_redirect_url.
func findRedirectURL(reqURL *url.URL, resp *http.Response) (*url.URL, bool) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return nil, false
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, false
	}
	locURL, err := url.Parse(loc)
	if err != nil {
		return nil, false
	}
	return reqURL.ResolveReference(locURL), true
}

// Submit builds a request from doc's first form (its action, method and
// input values), applies extra to it as request config (the same keys
// RequestBuilder.WithConfig accepts), and sends it.
// It is a thin wrapper over Document.Form kept for parity with grab.py's
// submit(), not a general form-modeling facility.
func (c *Client) Submit(ctx context.Context, doc *Document, extra map[string]any) (*Document, error) {
	action, method, values, err := doc.Form()
	if err != nil {
		return nil, err
	}
	target := doc.URL.ResolveReference(&url.URL{})
	if action != "" {
		parsed, perr := url.Parse(action)
		if perr != nil {
			return nil, NewMisuseError("invalid form action %q: %v", action, perr)
		}
		target = doc.URL.ResolveReference(parsed)
	}

	builder := NewRequest(strings.ToUpper(method), target.String())
	if strings.ToUpper(method) == http.MethodGet {
		q := target.Query()
		for k := range values {
			q.Set(k, values.Get(k))
		}
		target.RawQuery = q.Encode()
		builder = NewRequest(http.MethodGet, target.String())
	} else {
		builder.Body([]byte(values.Encode()))
		builder.Header("Content-Type", "application/x-www-form-urlencoded")
	}
	if extra != nil {
		builder.WithConfig(extra)
	}
	req, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return c.Go(ctx, req)
}

// ClientState is the on-disk-safe snapshot of a Client's configuration
// and cookies, the Go-native replacement for __getstate__/__setstate__:
// a struct that round-trips through encoding/json rather than a pickled
// object graph.
type ClientState struct {
	Config  map[string]any `json:"config"`
	Cookies []Cookie       `json:"cookies"`
}

// MarshalState captures the Client's configuration and cookie jar.
func (c *Client) MarshalState() (ClientState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClientState{
		Config: map[string]any{
			"user_agent":      c.userAgent,
			"reuse_cookies":   c.reuseCookies,
			"redirect_limit":  c.redirectLimit,
			"timeout":         c.timeout,
			"connect_timeout": c.connectTimeout,
			"proxy":           c.proxy,
		},
		Cookies: c.jar.All(),
	}, nil
}

// BuildClient reconstructs a Client from a previously captured
// ClientState.
func BuildClient(state ClientState) (*Client, error) {
	c := NewClient()
	if err := c.Setup(state.Config); err != nil {
		return nil, err
	}
	for _, ck := range state.Cookies {
		c.jar.Put(ck)
	}
	return c, nil
}

// defaultClient backs the package-level Request convenience function.
var defaultClient = NewClient()

// Request performs a one-shot GET (or, with cfg["method"], any method)
// against rawurl using a shared default Client, mirroring grab.py's
// module-level request() for simple call sites that don't need their
// own Client/cookie session.
func Request(ctx context.Context, rawurl string, cfg map[string]any) (*Document, error) {
	builder := NewRequest(http.MethodGet, rawurl)
	if cfg != nil {
		builder.WithConfig(cfg)
	}
	req, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return defaultClient.Go(ctx, req)
}

func readAllLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
