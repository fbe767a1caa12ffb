// Package encodingrepair detects the charset of a fetched page and decodes
// it to UTF-8, falling back across a candidate list and rejecting
// candidates whose output looks like mojibake.
package encodingrepair

import (
	"regexp"
	"strings"
)

var contentTypeCharsetRe = regexp.MustCompile(`(?i)charset=([^\s;]+)`)

// DetectFromContentType extracts and normalizes the charset named in a
// Content-Type header value, e.g. "text/html; charset=gbk".
func DetectFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	m := contentTypeCharsetRe.FindStringSubmatch(contentType)
	if m == nil {
		return ""
	}
	return normalizeCharset(strings.Trim(m[1], `"'`))
}

var metaPatterns = []*regexp.Regexp{
	// HTML5: <meta charset="utf-8">
	regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([^"'>\s;]+)`),
	// HTML4: <meta http-equiv="Content-Type" content="text/html; charset=gbk">
	regexp.MustCompile(`(?i)<meta[^>]+content=["'][^"']*charset=([^"';\s]+)`),
	// XML declaration: <?xml version="1.0" encoding="gbk"?>
	regexp.MustCompile(`(?i)<\?xml[^>]+encoding=["']([^"']+)`),
}

// DetectFromMeta scans the first 4 KiB of raw bytes for a charset
// declaration in HTML meta tags or an XML declaration.
func DetectFromMeta(raw []byte) string {
	sample := raw
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	// meta/XML declarations are ASCII-range; a byte-for-byte latin-1 view
	// is enough to locate them regardless of the page's real charset.
	text := latin1ToString(sample)

	for _, pattern := range metaPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if normalized := normalizeCharset(strings.TrimSpace(m[1])); normalized != "" {
			return normalized
		}
	}
	return ""
}

func latin1ToString(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// charsetAliases maps common charset spellings to their canonical names.
var charsetAliases = map[string]string{
	"gb2312":      "gb18030",
	"gbk":         "gb18030",
	"gb_2312":     "gb18030",
	"gb-2312":     "gb18030",
	"chinese":     "gb18030",
	"cp936":       "gb18030",
	"ms936":       "gb18030",
	"windows-936": "gb18030",
	"euc-cn":      "gb18030",
	"utf8":        "utf-8",
	"utf-8":       "utf-8",
	"iso-8859-1":  "latin-1",
	"latin1":      "latin-1",
	"ascii":       "ascii",
	"big5":        "big5",
	"big5-hkscs":  "big5hkscs",
}

func normalizeCharset(charset string) string {
	if charset == "" {
		return ""
	}
	lower := strings.ToLower(strings.TrimSpace(charset))
	if mapped, ok := charsetAliases[lower]; ok {
		return mapped
	}
	return lower
}
