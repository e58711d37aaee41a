package middleware

import (
	"net/http"
	"strings"

	"github.com/stygian-io/styx/internal/util"
)

const maxLoggedValueLen = 200

var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-api-token":         {},
	"x-auth-token":        {},
	"x-forwarded-for":     {},
}

// SanitizeHeaders returns a map of header keys to redacted/sanitized values
// for safe logging. Sensitive headers (including the clearance cookie) are
// redacted; other values are sanitized and truncated.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
			out[k] = []string{"<redacted>"}
			continue
		}
		sanitizedVals := make([]string, 0, len(vals))
		for _, v := range vals {
			sanitizedVals = append(sanitizedVals, util.Truncate(util.SanitizeForLog(v), maxLoggedValueLen))
		}
		out[k] = sanitizedVals
	}
	return out
}

// SanitizePath prepares a request path for safe logging by removing control
// characters and truncating long values. It does not include query
// parameters.
func SanitizePath(p string) string {
	if i := strings.Index(p, "?"); i != -1 {
		p = p[:i]
	}
	return util.Truncate(util.SanitizeForLog(p), maxLoggedValueLen)
}
