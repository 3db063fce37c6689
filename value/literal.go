package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Literal renders v as a SQL literal token.
//
// This is the only place values are turned into SQL text, so it is the
// injection boundary for every statement the bridge runs. Text is wrapped in
// single quotes with each embedded quote doubled; no other escaping is
// applied. Lists render unquoted as [e1,e2,...] for vector columns. Binary
// and map values are rendered as text (base64 and compact JSON) and quoted.
func Literal(v Value) string {
	var sb strings.Builder
	writeLiteral(&sb, v)
	return sb.String()
}

func writeLiteral(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindNull:
		sb.WriteString("NULL")
	case KindBool:
		if v.b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			writeQuoted(sb, formatFloat(v.f))
			break
		}
		sb.WriteString(formatFloat(v.f))
	case KindText:
		writeQuoted(sb, v.s)
	case KindList:
		sb.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeLiteral(sb, e)
		}
		sb.WriteByte(']')
	case KindBinary:
		writeQuoted(sb, base64.StdEncoding.EncodeToString(v.bin))
	case KindMap:
		writeQuoted(sb, mapText(v))
	default:
		writeQuoted(sb, fmt.Sprint(v.Interface()))
	}
}

// writeQuoted writes s between single quotes, doubling embedded quotes.
// Bytes are copied as-is so invalid UTF-8 is preserved.
func writeQuoted(sb *strings.Builder, s string) {
	sb.Grow(len(s) + 2)
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			sb.WriteByte('\'')
		}
		sb.WriteByte(c)
	}
	sb.WriteByte('\'')
}

// formatFloat renders f in its shortest round-trip form and keeps it
// recognizably a float: 1 becomes 1.0. Non-finite values have no numeric
// literal; callers quote them.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func mapText(v Value) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v.Interface())
	}
	return string(b)
}
