package grab

import "net/http"

// MergeHeaders copies entries from src into dst. Keys already present in
// dst are left untouched unless replace is true, matching the source's
// merge_with_dict(hdr1, hdr2, replace=False). Build, Request.clone (used
// for every redirect hop) and HTTPTransport copy headers with it into an
// empty map, and RequestBuilder.WithConfig uses replace=true so a
// config's "headers" entry overrides headers already set on the builder.
func MergeHeaders(dst, src http.Header, replace bool) http.Header {
	if dst == nil {
		dst = make(http.Header, len(src))
	}
	for key, values := range src {
		if !replace {
			if _, exists := dst[key]; exists {
				continue
			}
		}
		dst[key] = append([]string(nil), values...)
	}
	return dst
}
