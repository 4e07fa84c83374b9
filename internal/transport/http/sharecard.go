package httptransport

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/iliamunaev/movie-composite-gateway/internal/model"
)

// absolutize returns a copy of res whose relative links point at the
// Catalog. Top-level string fields named url or ending in _url are
// rewritten, and so is a relative Location header.
func absolutize(base string, res *model.CallResult) *model.CallResult {
	out := &model.CallResult{
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
		Body:       res.Body,
	}
	if loc := out.Header.Get("Location"); loc != "" {
		out.Header.Set("Location", absoluteURL(base, loc))
	}
	if res.HasBody() {
		out.Body = rewriteURLFields(base, res.Body)
	}
	return out
}

func isURLField(key string) bool {
	return key == "url" || strings.HasSuffix(key, "_url")
}

// absoluteURL anchors a relative reference at base. Absolute and empty
// values are returned unchanged.
func absoluteURL(base, ref string) string {
	if ref == "" {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && (u.IsAbs() || u.Host != "") {
		return ref
	}
	base = strings.TrimRight(base, "/")
	if strings.HasPrefix(ref, "/") {
		return base + ref
	}
	return base + "/" + ref
}

// rewriteURLFields rewrites the link fields of a JSON object, keeping key
// order and every other value byte for byte. Non-objects are returned as is.
func rewriteURLFields(base string, body json.RawMessage) json.RawMessage {
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return body
	}

	var (
		buf     bytes.Buffer
		first   = true
		changed bool
	)
	buf.WriteByte('{')
	doc.ForEach(func(key, value gjson.Result) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(key.Raw)
		buf.WriteByte(':')

		if value.Type == gjson.String && isURLField(key.String()) {
			if abs := absoluteURL(base, value.Str); abs != value.Str {
				if enc, err := json.Marshal(abs); err == nil {
					buf.Write(enc)
					changed = true
					return true
				}
			}
		}
		buf.WriteString(value.Raw)
		return true
	})
	buf.WriteByte('}')

	if !changed {
		return body
	}
	return buf.Bytes()
}
