package extract

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// kerning adjustments inside a TJ array at or below this value read as a word gap.
const tjWordGap = -200

// streamText returns the text shown by a page content stream. A new line is
// started wherever the stream moves to a new text line. String operands are
// decoded with the font last selected by Tf, looked up by resource name in
// fonts; q and Q save and restore that selection.
func streamText(data []byte, fonts map[string]*fontDecoder) string {
	var (
		out      strings.Builder
		strs     []string
		nums     []float64
		inArray  int
		lastName string
		font     *fontDecoder
		saved    []*fontDecoder
	)
	newline := func() {
		s := out.String()
		if len(s) > 0 && s[len(s)-1] != '\n' {
			out.WriteByte('\n')
		}
	}
	space := func() {
		s := out.String()
		if len(s) > 0 && s[len(s)-1] != '\n' && s[len(s)-1] != ' ' {
			out.WriteByte(' ')
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			raw, n := readLiteral(data[i:])
			strs = append(strs, font.decode(raw))
			i += n
		case c == '<':
			if i+1 < len(data) && data[i+1] == '<' {
				i += 2
				continue
			}
			raw, n := readHex(data[i:])
			strs = append(strs, font.decode(raw))
			i += n
		case c == '[':
			inArray++
			i++
		case c == ']':
			if inArray > 0 {
				inArray--
			}
			i++
		case c == '/':
			i++
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isDelimiter(data[i]) {
				i++
			}
			lastName = string(data[start:i])
		case c == '>' || c == '{' || c == '}' || c == ')':
			i++
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < len(data) && (data[i] == '.' || (data[i] >= '0' && data[i] <= '9')) {
				i++
			}
			value, err := strconv.ParseFloat(string(data[start:i]), 64)
			if err != nil {
				continue
			}
			if inArray > 0 && value <= tjWordGap {
				strs = append(strs, " ")
				continue
			}
			nums = append(nums, value)
		default:
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isDelimiter(data[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			switch op := string(data[start:i]); op {
			case "Tj", "TJ":
				out.WriteString(strings.Join(strs, ""))
			case "'", "\"":
				newline()
				out.WriteString(strings.Join(strs, ""))
			case "T*", "ET", "Tm":
				newline()
			case "Td", "TD":
				if len(nums) >= 2 && nums[len(nums)-1] != 0 {
					newline()
				} else {
					space()
				}
			case "Tf":
				font = fonts[lastName]
			case "q":
				saved = append(saved, font)
			case "Q":
				if n := len(saved); n > 0 {
					font, saved = saved[n-1], saved[:n-1]
				}
			case "BI":
				i = skipInlineImage(data, i)
			}
			strs, nums, lastName = strs[:0], nums[:0], ""
		}
	}
	return cleanLines(out.String())
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// readLiteral decodes a balanced literal string starting at data[0] == '('
// and returns its bytes plus the number of input bytes consumed.
func readLiteral(data []byte) ([]byte, int) {
	var buf bytes.Buffer
	depth := 0
	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case c == '(':
			if depth > 0 {
				buf.WriteByte(c)
			}
			depth++
			i++
		case c == ')':
			depth--
			i++
			if depth == 0 {
				return buf.Bytes(), i
			}
			buf.WriteByte(c)
		case c == '\\' && i+1 < len(data):
			i++
			switch e := data[i]; e {
			case 'n':
				buf.WriteByte('\n')
				i++
			case 'r':
				buf.WriteByte('\r')
				i++
			case 't':
				buf.WriteByte('\t')
				i++
			case 'b':
				buf.WriteByte('\b')
				i++
			case 'f':
				buf.WriteByte('\f')
				i++
			case '\r':
				i++
				if i < len(data) && data[i] == '\n' {
					i++
				}
			case '\n':
				i++
			default:
				if e >= '0' && e <= '7' {
					val := 0
					for n := 0; n < 3 && i < len(data) && data[i] >= '0' && data[i] <= '7'; n++ {
						val = val*8 + int(data[i]-'0')
						i++
					}
					buf.WriteByte(byte(val))
				} else {
					buf.WriteByte(e)
					i++
				}
			}
		default:
			buf.WriteByte(c)
			i++
		}
	}
	return buf.Bytes(), len(data)
}

// readHex decodes a hex string starting at data[0] == '<'.
func readHex(data []byte) ([]byte, int) {
	var out []byte
	var hi byte
	half := false
	for i := 1; i < len(data); i++ {
		c := data[i]
		if c == '>' {
			if half {
				out = append(out, hi<<4)
			}
			return out, i + 1
		}
		v, ok := hexValue(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
			half = false
		} else {
			hi = v
			half = true
		}
	}
	return out, len(data)
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func skipInlineImage(data []byte, i int) int {
	for ; i+2 < len(data); i++ {
		if isPDFSpace(data[i]) && data[i+1] == 'E' && data[i+2] == 'I' &&
			(i+3 == len(data) || isPDFSpace(data[i+3])) {
			return i + 3
		}
	}
	return len(data)
}

var (
	utf16Decoder = xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM)
	ansiDecoder  = charmap.Windows1252
)

// decodeText turns string operand bytes into UTF-8. Strings carrying a UTF-16
// byte order mark are decoded as such; everything else is read as WinAnsi.
func decodeText(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		if out, err := utf16Decoder.NewDecoder().Bytes(raw); err == nil {
			return string(out)
		}
	}
	out, err := ansiDecoder.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// cleanLines drops control characters, collapses spaces within each line and
// removes empty lines.
func cleanLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			switch {
			case unicode.IsSpace(r):
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
					prevSpace = true
				}
			case unicode.IsPrint(r):
				sb.WriteRune(r)
				prevSpace = false
			}
		}
		if cleaned := strings.TrimSpace(sb.String()); cleaned != "" {
			kept = append(kept, cleaned)
		}
	}
	return strings.Join(kept, "\n")
}
