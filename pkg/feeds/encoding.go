package feeds

import (
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var xmlDeclEncoding = regexp.MustCompile(`(?i)^(\s*<\?xml[^>]*?encoding\s*=\s*["'])([^"']+)(["'])`)

// toUTF8 returns body unchanged when it is already valid UTF-8. Otherwise it transcodes from the
// charset declared in the XML prolog or the Content-Type header, falling back to Windows-1252,
// and rewrites the prolog so downstream decoders do not transcode a second time.
func toUTF8(body []byte, contentType string) []byte {
	if utf8.Valid(body) {
		return body
	}

	enc := pickEncoding(declaredCharset(body), contentTypeCharset(contentType))
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return body
	}
	return xmlDeclEncoding.ReplaceAll(out, []byte("${1}UTF-8${3}"))
}

// pickEncoding returns the first label that names a real non-UTF-8 encoding.
// A UTF-8 label on bytes that are not UTF-8 is a lie, so it is skipped.
func pickEncoding(labels ...string) encoding.Encoding {
	for _, label := range labels {
		if label == "" {
			continue
		}
		enc, name := charset.Lookup(label)
		if enc == nil || name == "utf-8" {
			continue
		}
		return enc
	}
	return charmap.Windows1252
}

func declaredCharset(body []byte) string {
	head := body
	if len(head) > 256 {
		head = head[:256]
	}
	m := xmlDeclEncoding.FindSubmatch(head)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(string(m[2]))
}

func contentTypeCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
