package grab

import (
	"net/http"
	"time"
)

// requestConfigKeys is the closed set of keys merge_request_configs
// accepts, Client.Setup's Go-native equivalent. An unknown key is a
// programming mistake (typo, moved-on API), never something to ignore.
var requestConfigKeys = map[string]struct{}{
	"method":          {},
	"url":             {},
	"headers":         {},
	"body":            {},
	"proxy":           {},
	"timeout":         {},
	"connect_timeout": {},
	"redirect_limit":  {},
	"reuse_cookies":   {},
	"user_agent":      {},
}

// Request is a built HTTP request description. Once Build returns a
// *Request there is no setter method; the redirect loop works on a copy
// made by clone (with its own Headers map) rather than on the caller's
// value, matching the source's prepare_request treating a request as a
// value produced once per attempt.
type Request struct {
	Method         string
	URL            string
	Headers        http.Header
	Body           []byte
	Proxy          string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	RedirectLimit  int
	ReuseCookies   bool
	UserAgent      string
}

// RequestBuilder accumulates request fields before a single Build call.
type RequestBuilder struct {
	req Request
	err error
}

// NewRequest starts building a request for method and url.
func NewRequest(method, url string) *RequestBuilder {
	return &RequestBuilder{req: Request{
		Method:        method,
		URL:           url,
		Headers:       make(http.Header),
		RedirectLimit: 5,
		ReuseCookies:  true,
	}}
}

func (b *RequestBuilder) Header(key, value string) *RequestBuilder {
	b.req.Headers.Set(key, value)
	return b
}

func (b *RequestBuilder) Body(body []byte) *RequestBuilder {
	b.req.Body = body
	return b
}

func (b *RequestBuilder) Proxy(proxyURL string) *RequestBuilder {
	b.req.Proxy = proxyURL
	return b
}

func (b *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	b.req.Timeout = d
	return b
}

func (b *RequestBuilder) ConnectTimeout(d time.Duration) *RequestBuilder {
	b.req.ConnectTimeout = d
	return b
}

func (b *RequestBuilder) RedirectLimit(n int) *RequestBuilder {
	b.req.RedirectLimit = n
	return b
}

func (b *RequestBuilder) ReuseCookies(reuse bool) *RequestBuilder {
	b.req.ReuseCookies = reuse
	return b
}

func (b *RequestBuilder) UserAgent(ua string) *RequestBuilder {
	b.req.UserAgent = ua
	return b
}

// WithConfig applies a map-shaped request config, the Go-native
// equivalent of merge_request_configs: every key must be a recognized
// Request field or Build returns a MisuseError, never a silent no-op.
func (b *RequestBuilder) WithConfig(cfg map[string]any) *RequestBuilder {
	for key, val := range cfg {
		if _, ok := requestConfigKeys[key]; !ok {
			b.err = NewMisuseError("unknown request config key %q", key)
			return b
		}
		switch key {
		case "method":
			if s, ok := val.(string); ok {
				b.req.Method = s
			}
		case "url":
			if s, ok := val.(string); ok {
				b.req.URL = s
			}
		case "headers":
			if h, ok := val.(http.Header); ok {
				b.req.Headers = MergeHeaders(b.req.Headers, h, true)
			}
		case "body":
			if by, ok := val.([]byte); ok {
				b.req.Body = by
			}
		case "proxy":
			if s, ok := val.(string); ok {
				b.req.Proxy = s
			}
		case "timeout":
			if d, ok := val.(time.Duration); ok {
				b.req.Timeout = d
			}
		case "connect_timeout":
			if d, ok := val.(time.Duration); ok {
				b.req.ConnectTimeout = d
			}
		case "redirect_limit":
			if n, ok := val.(int); ok {
				b.req.RedirectLimit = n
			}
		case "reuse_cookies":
			if v, ok := val.(bool); ok {
				b.req.ReuseCookies = v
			}
		case "user_agent":
			if s, ok := val.(string); ok {
				b.req.UserAgent = s
			}
		}
	}
	return b
}

// Build validates the accumulated fields and returns the immutable
// Request, or the first MisuseError encountered while building it.
func (b *RequestBuilder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.req.URL == "" {
		return nil, NewMisuseError("request has no URL")
	}
	if b.req.Method == "" {
		b.req.Method = http.MethodGet
	}
	out := b.req
	out.Headers = MergeHeaders(make(http.Header), b.req.Headers, true)
	return &out, nil
}

// clone returns a shallow copy of r with its own Headers map, so the
// redirect loop can rebuild a request for the next hop without mutating
// the one the caller passed in.
func (r *Request) clone() *Request {
	cp := *r
	cp.Headers = MergeHeaders(make(http.Header), r.Headers, true)
	return &cp
}
