// Package form decodes application/x-www-form-urlencoded request bodies into
// a flat key/value map.
package form

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Parse splits body on '&' and each pair on its first '='. Keys and values
// are trimmed and percent-decoded; '+' is kept literally. Pairs without '=',
// with malformed escapes, or that decode to invalid UTF-8 are skipped. A
// repeated key keeps its last value.
func Parse(body string) map[string]string {
	values := make(map[string]string)
	for _, pair := range strings.Split(body, "&") {
		rawKey, rawValue, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, ok := decode(rawKey)
		if !ok {
			continue
		}
		value, ok := decode(rawValue)
		if !ok {
			continue
		}
		values[key] = value
	}
	return values
}

func decode(s string) (string, bool) {
	decoded, err := url.PathUnescape(strings.TrimSpace(s))
	if err != nil || !utf8.ValidString(decoded) {
		return "", false
	}
	return decoded, true
}
