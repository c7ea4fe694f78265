package extract

import (
	"encoding/binary"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// cmapRangeLimit caps how many codes one bfrange entry may expand to.
const cmapRangeLimit = 0x10000

var utf16Units = xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM)

// fontDecoder maps the character codes of one font to Unicode. Lookups go
// through the ToUnicode CMap first, then the Differences glyph names, then
// the font's base single-byte encoding.
type fontDecoder struct {
	codeBytes   int
	toUnicode   map[uint32]string
	differences map[byte]string
	base        *charmap.Charmap
}

// decode turns a string operand shown with f into UTF-8. A nil decoder
// falls back to decodeText.
func (f *fontDecoder) decode(raw []byte) string {
	if f == nil {
		return decodeText(raw)
	}
	var sb strings.Builder
	if f.codeBytes == 2 {
		for i := 0; i+1 < len(raw); i += 2 {
			code := uint32(raw[i])<<8 | uint32(raw[i+1])
			// Two-byte codes without a mapping are glyph ids and carry no text.
			sb.WriteString(f.toUnicode[code])
		}
		return sb.String()
	}
	base := f.base
	if base == nil {
		base = charmap.Windows1252
	}
	for _, c := range raw {
		if s, ok := f.toUnicode[uint32(c)]; ok {
			sb.WriteString(s)
			continue
		}
		if s, ok := f.differences[c]; ok {
			sb.WriteString(s)
			continue
		}
		sb.WriteRune(base.DecodeByte(c))
	}
	return sb.String()
}

func baseEncoding(name string) *charmap.Charmap {
	if name == "MacRomanEncoding" {
		return charmap.Macintosh
	}
	return charmap.Windows1252
}

type cmapToken struct {
	hex   []byte
	word  string
	isHex bool
}

func cmapTokens(data []byte) []cmapToken {
	var toks []cmapToken
	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '<':
			if i+1 < len(data) && data[i+1] == '<' {
				toks = append(toks, cmapToken{word: "<<"})
				i += 2
				continue
			}
			raw, n := readHex(data[i:])
			toks = append(toks, cmapToken{hex: raw, isHex: true})
			i += n
		case c == '>' && i+1 < len(data) && data[i+1] == '>':
			toks = append(toks, cmapToken{word: ">>"})
			i += 2
		case c == '(':
			_, n := readLiteral(data[i:])
			i += n
		case c == '[' || c == ']' || c == '{' || c == '}':
			toks = append(toks, cmapToken{word: string(c)})
			i++
		default:
			start := i
			i++
			for i < len(data) && !isPDFSpace(data[i]) && !isDelimiter(data[i]) {
				i++
			}
			toks = append(toks, cmapToken{word: string(data[start:i])})
		}
	}
	return toks
}

// parseToUnicode reads the bfchar and bfrange sections of a ToUnicode CMap.
// Destination strings are UTF-16BE.
func parseToUnicode(data []byte) map[uint32]string {
	toks := cmapTokens(data)
	out := make(map[uint32]string)
	for i := 0; i < len(toks); i++ {
		switch toks[i].word {
		case "beginbfchar":
			i++
			for i+1 < len(toks) && toks[i].word != "endbfchar" {
				src, dst := toks[i], toks[i+1]
				if src.isHex && dst.isHex {
					out[codeValue(src.hex)] = utf16Text(dst.hex)
				}
				i += 2
			}
		case "beginbfrange":
			i = parseBFRange(toks, i+1, out)
		}
	}
	return out
}

// parseBFRange consumes bfrange entries starting at toks[i] and returns the
// index of the closing endbfrange token.
func parseBFRange(toks []cmapToken, i int, out map[uint32]string) int {
	for i+2 < len(toks) && toks[i].word != "endbfrange" {
		lo, hi := toks[i], toks[i+1]
		if !lo.isHex || !hi.isHex {
			i++
			continue
		}
		first, last := codeValue(lo.hex), codeValue(hi.hex)
		if last < first || last-first >= cmapRangeLimit {
			i += 3
			continue
		}
		if toks[i+2].isHex {
			dst := toks[i+2].hex
			for code := first; code <= last; code++ {
				out[code] = utf16Text(offsetUnit(dst, code-first))
			}
			i += 3
			continue
		}
		if toks[i+2].word != "[" {
			i += 3
			continue
		}
		i += 3
		for code := first; i < len(toks) && toks[i].word != "]"; i++ {
			if toks[i].isHex {
				if code <= last {
					out[code] = utf16Text(toks[i].hex)
				}
				code++
			}
		}
		i++
	}
	return i
}

func codeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// offsetUnit adds delta to the last UTF-16 unit of dst.
func offsetUnit(dst []byte, delta uint32) []byte {
	if delta == 0 || len(dst) < 2 {
		return dst
	}
	out := append([]byte(nil), dst...)
	n := len(out)
	unit := binary.BigEndian.Uint16(out[n-2:])
	binary.BigEndian.PutUint16(out[n-2:], unit+uint16(delta))
	return out
}

func utf16Text(b []byte) string {
	if len(b)%2 == 1 {
		b = append([]byte{0}, b...)
	}
	out, err := utf16Units.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

var glyphNames = map[string]string{
	"space": " ", "exclam": "!", "quotedbl": "\"", "numbersign": "#",
	"dollar": "$", "percent": "%", "ampersand": "&", "quotesingle": "'",
	"parenleft": "(", "parenright": ")", "asterisk": "*", "plus": "+",
	"comma": ",", "hyphen": "-", "period": ".", "slash": "/",
	"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
	"colon": ":", "semicolon": ";", "less": "<", "equal": "=",
	"greater": ">", "question": "?", "at": "@", "bracketleft": "[",
	"backslash": "\\", "bracketright": "]", "underscore": "_",
	"braceleft": "{", "bar": "|", "braceright": "}",
	"quoteleft": "‘", "quoteright": "’", "quotedblleft": "“", "quotedblright": "”",
	"endash": "–", "emdash": "—", "bullet": "•", "ellipsis": "…",
	"fi": "fi", "fl": "fl", "ff": "ff", "ffi": "ffi", "ffl": "ffl",
	"agrave": "à", "acircumflex": "â", "adieresis": "ä", "ccedilla": "ç",
	"eacute": "é", "egrave": "è", "ecircumflex": "ê", "edieresis": "ë",
	"icircumflex": "î", "idieresis": "ï", "ocircumflex": "ô", "odieresis": "ö",
	"ugrave": "ù", "ucircumflex": "û", "udieresis": "ü", "germandbls": "ß",
	"Agrave": "À", "Ccedilla": "Ç", "Eacute": "É", "Egrave": "È",
	"degree": "°", "Euro": "€", "euro": "€", "nbspace": " ",
}

// glyphText maps a glyph name to its text: well known names, uniXXXX and
// uXXXX[XX] forms, and single letter names.
func glyphText(name string) (string, bool) {
	if s, ok := glyphNames[name]; ok {
		return s, true
	}
	if hex, ok := strings.CutPrefix(name, "uni"); ok && len(hex) >= 4 && len(hex)%4 == 0 {
		var sb strings.Builder
		for i := 0; i < len(hex); i += 4 {
			v, err := strconv.ParseUint(hex[i:i+4], 16, 16)
			if err != nil {
				return "", false
			}
			sb.WriteRune(rune(v))
		}
		return sb.String(), true
	}
	if hex, ok := strings.CutPrefix(name, "u"); ok && len(hex) >= 4 && len(hex) <= 6 {
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return string(rune(v)), true
		}
	}
	if len(name) == 1 && (name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z') {
		return name, true
	}
	return "", false
}
