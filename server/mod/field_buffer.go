package mod

import "bytes"

// FieldBuffer accumulates space-separated access-log fields.
type FieldBuffer struct {
	data bytes.Buffer
	sep  byte
}

// NewFieldBuffer builds a FieldBuffer using sep between fields.
func NewFieldBuffer(sep byte) *FieldBuffer {
	return &FieldBuffer{sep: sep}
}

// Append writes s as-is ("-" when s is empty), preceded by the separator if
// this isn't the first field.
func (b *FieldBuffer) Append(s string) {
	b.append(s, false)
}

// FAppend writes s with internal spaces replaced by '+', keeping the field
// single-token in a space-separated log line.
func (b *FieldBuffer) FAppend(s string) {
	b.append(s, true)
}

func (b *FieldBuffer) append(s string, replaceSpaces bool) {
	if b.data.Len() > 0 {
		b.data.WriteByte(b.sep)
	}
	s = emptyWrap(s)
	if replaceSpaces {
		for i := 0; i < len(s); i++ {
			if s[i] == ' ' {
				b.data.WriteByte('+')
			} else {
				b.data.WriteByte(s[i])
			}
		}
		return
	}
	b.data.WriteString(s)
}

func emptyWrap(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (b *FieldBuffer) Bytes() []byte {
	return b.data.Bytes()
}

func (b *FieldBuffer) String() string {
	return b.data.String()
}
