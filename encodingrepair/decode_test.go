package encodingrepair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestDecodeContentTypeCharset(t *testing.T) {
	raw, err := simplifiedchinese.GBK.NewEncoder().String("你好世界")
	assert.NoError(t, err)

	text, charset := Decode([]byte(raw), "text/html; charset=gbk")
	assert.Equal(t, "你好世界", text)
	assert.Equal(t, "gb18030", charset)
}

func TestDecodeMetaCharset(t *testing.T) {
	raw, err := simplifiedchinese.GBK.NewEncoder().String(`<html><head><meta charset="gbk"></head><body>你好</body></html>`)
	assert.NoError(t, err)

	text, charset := Decode([]byte(raw), "")
	assert.Contains(t, text, "你好")
	assert.Equal(t, "gb18030", charset)
}

func TestDecodeUTF8Passthrough(t *testing.T) {
	text, charset := Decode([]byte("<html>hello</html>"), "text/html; charset=utf-8")
	assert.Equal(t, "<html>hello</html>", text)
	assert.Equal(t, "utf-8", charset)
}

func TestDecodeEmpty(t *testing.T) {
	text, charset := Decode(nil, "")
	assert.Equal(t, "", text)
	assert.Equal(t, "utf-8", charset)
}

func TestHasDecodingErrorsThreshold(t *testing.T) {
	assert.False(t, hasDecodingErrors("perfectly fine ascii text"))
	assert.True(t, hasDecodingErrors("锟斤拷锟斤拷锟斤拷"))
}

func TestNormalizeCharsetTable(t *testing.T) {
	cases := map[string]string{
		"GBK":         "gb18030",
		"gb2312":      "gb18030",
		"cp936":       "gb18030",
		"UTF8":        "utf-8",
		"ISO-8859-1":  "latin-1",
		"unknown-xyz": "unknown-xyz",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeCharset(in), in)
	}
}
