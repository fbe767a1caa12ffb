package encodingrepair

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// fallbackEncodings is the candidate order tried once header/meta detection
// has been exhausted.
var fallbackEncodings = []string{"gb18030", "gbk", "gb2312", "big5", "utf-8"}

var decoders = map[string]encoding.Encoding{
	"gb18030":   simplifiedchinese.GB18030,
	"gbk":       simplifiedchinese.GBK,
	"gb2312":    simplifiedchinese.GB18030, // gb18030 is a superset of gb2312
	"big5":      traditionalchinese.Big5,
	"big5hkscs": traditionalchinese.Big5,
	"utf-8":     unicode.UTF8,
}

// mojibakeThreshold is the maximum acceptable ratio of suspicious
// characters within the first 10 000 characters of decoded text.
const mojibakeThreshold = 0.05

var garbledPatterns = []string{"锟斤拷", "锟", "ï¿½", "â€", "Ã©", "Ã¨", "Ã¯"}

// Decode turns raw page bytes into UTF-8 text, trying Content-Type, then
// HTML meta, then a fixed fallback list, then finally UTF-8 with
// replacement. It returns the decoded text and the encoding name used.
func Decode(raw []byte, contentType string) (string, string) {
	if len(raw) == 0 {
		return "", "utf-8"
	}

	if charset := DetectFromContentType(contentType); charset != "" {
		if text, ok := tryDecode(raw, charset); ok {
			return text, charset
		}
	}

	if charset := DetectFromMeta(raw); charset != "" {
		if text, ok := tryDecode(raw, charset); ok {
			return text, charset
		}
	}

	for _, charset := range fallbackEncodings {
		if text, ok := tryDecode(raw, charset); ok {
			return text, charset
		}
	}

	return decodeUTF8Replace(raw), "utf-8"
}

func tryDecode(raw []byte, charset string) (string, bool) {
	var text string

	switch charset {
	case "utf-8":
		if !utf8.Valid(raw) {
			return "", false
		}
		text = string(raw)
	case "latin-1", "ascii":
		text = latin1ToString(raw)
	default:
		dec, ok := decoders[charset]
		if !ok {
			return "", false
		}
		out, err := dec.NewDecoder().Bytes(raw)
		if err != nil {
			return "", false
		}
		text = string(out)
	}

	if hasDecodingErrors(text) {
		return "", false
	}
	return text, true
}

func decodeUTF8Replace(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		b.WriteRune(r)
		raw = raw[size:]
	}
	return b.String()
}

// hasDecodingErrors implements the mojibake heuristic: a
// sample is rejected if U+FFFD plus known garbled bigrams exceed 5% of the
// first 10 000 characters.
func hasDecodingErrors(text string) bool {
	if text == "" {
		return false
	}

	runes := []rune(text)
	sampleLen := len(runes)
	if sampleLen > 10000 {
		sampleLen = 10000
	}
	sample := string(runes[:sampleLen])

	suspicious := strings.Count(sample, "�")
	for _, pattern := range garbledPatterns {
		suspicious += strings.Count(sample, pattern)
	}

	if sampleLen == 0 {
		return false
	}
	return float64(suspicious)/float64(sampleLen) > mojibakeThreshold
}
