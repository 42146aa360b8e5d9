package grab

import (
	"bytes"
	"net/http"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Document is the result of a completed request: the final URL after any
// redirects, status, headers, raw body, and the cookies the response set.
// DOM selection is delegated to goquery rather than reimplemented: Query
// lazily parses Body into a *goquery.Document the first time it's called
// and caches the result.
type Document struct {
	URL        *url.URL
	StatusCode int
	Headers    http.Header
	Body       []byte
	Cookies    []Cookie

	parseOnce sync.Once
	parsed    *goquery.Document
	parseErr  error
}

// Query returns the goquery document for Body, parsing it on first call.
func (d *Document) Query() (*goquery.Document, error) {
	d.parseOnce.Do(func() {
		d.parsed, d.parseErr = goquery.NewDocumentFromReader(bytes.NewReader(d.Body))
	})
	return d.parsed, d.parseErr
}

// Form extracts the first <form> on the page: its action, method, and the
// name/value pairs of its inputs. It is a best-effort convenience for
// Client.Submit, not a general form-modeling facility.
func (d *Document) Form() (action, method string, values url.Values, err error) {
	doc, err := d.Query()
	if err != nil {
		return "", "", nil, err
	}
	sel := doc.Find("form").First()
	if sel.Length() == 0 {
		return "", "", nil, NewIntegrityError("document has no form")
	}
	action, _ = sel.Attr("action")
	method, _ = sel.Attr("method")
	if method == "" {
		method = http.MethodGet
	}
	values = make(url.Values)
	sel.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := input.Attr("value")
		values.Set(name, value)
	})
	return action, method, values, nil
}

// HasValidHTML reports whether the response looks like a real HTML
// document rather than e.g. a captive-portal or error page masquerading
// as a 200. Spiders install predicates like this one to decide whether a
// response counts as valid before handing it to a parser.
func (d *Document) HasValidHTML() bool {
	doc, err := d.Query()
	if err != nil || doc == nil {
		return false
	}
	return doc.Find("html").Length() > 0
}
