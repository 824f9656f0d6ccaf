package renderer

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
)

// ReloadScript returns the live-reload client for a hub at addr (host:port).
func ReloadScript(addr string) string {
	return fmt.Sprintf(`<script>
(function () {
  var ws = new WebSocket("ws://%s");
  ws.onopen = function () { console.log("velto: live reload connected"); };
  ws.onmessage = function () { location.reload(); };
  ws.onerror = function (e) { console.error("velto: live reload error", e); };
})();
</script>
`, addr)
}

// InjectScript inserts script immediately before the last closing body tag,
// or appends it when the page has none. Tags inside comments, scripts and
// attribute values are not mistaken for the body end.
func InjectScript(page []byte, script string) []byte {
	at := closingBodyOffset(page)
	if at < 0 {
		out := make([]byte, 0, len(page)+len(script))
		out = append(out, page...)
		return append(out, script...)
	}

	out := make([]byte, 0, len(page)+len(script))
	out = append(out, page[:at]...)
	out = append(out, script...)
	return append(out, page[at:]...)
}

// closingBodyOffset returns the byte offset of the last </body> end tag, or
// -1 if there is none.
func closingBodyOffset(page []byte) int {
	z := html.NewTokenizer(bytes.NewReader(page))
	offset, found := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return found
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				found = offset
			}
		}
		offset += raw
	}
}
