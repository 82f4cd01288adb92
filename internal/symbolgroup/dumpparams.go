package symbolgroup

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// DumpFlags are the global rendering switches.
type DumpFlags uint

const (
	// DumpHumanReadable writes values unencoded for human consumption.
	DumpHumanReadable DumpFlags = 0x1
	// DumpComplexDumpers enables container synthesis.
	DumpComplexDumpers DumpFlags = 0x2
)

// Format codes selectable per type or per path.
const (
	FormatNone    = -1
	FormatNatural = 0
	FormatHex     = 1
	FormatDecimal = 2
	FormatOctal   = 3
	FormatBinary  = 4
	FormatRaw     = 5
)

// MaxFormatCode is the largest format code accepted.
const MaxFormatCode = 99

// Value encodings written to the valueencoded field.
const (
	ValueEncodingNone   = 0
	ValueEncodingHexUTF = 1
)

// FormatMap maps a type name or an iname path to a format code.
type FormatMap map[string]int

// DumpParameters hold the rendering flags and format overrides.
type DumpParameters struct {
	Flags             DumpFlags
	TypeFormats       FormatMap
	IndividualFormats FormatMap
}

// DefaultDumpParameters enables complex dumpers in machine mode.
func DefaultDumpParameters() DumpParameters {
	return DumpParameters{Flags: DumpComplexDumpers}
}

// HumanReadable reports whether values are written unencoded.
func (p DumpParameters) HumanReadable() bool { return p.Flags&DumpHumanReadable != 0 }

// ComplexDumpers reports whether container synthesis is enabled.
func (p DumpParameters) ComplexDumpers() bool { return p.Flags&DumpComplexDumpers != 0 }

// Format returns the format code for a node. Path overrides win over type
// overrides; FormatNone means no override.
func (p DumpParameters) Format(typeName, iname string) int {
	if f, ok := p.IndividualFormats[iname]; ok {
		return f
	}
	if f, ok := p.TypeFormats[typeName]; ok {
		return f
	}
	return FormatNone
}

// ParseFormatMap decodes "key:code,key:code". The key is split at the last
// colon so C++ type names like "std::string" work. Malformed entries are
// skipped individually.
func ParseFormatMap(s string) FormatMap {
	m := make(FormatMap)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		colon := strings.LastIndexByte(entry, ':')
		if colon <= 0 || colon == len(entry)-1 {
			continue
		}
		code, err := strconv.Atoi(entry[colon+1:])
		if err != nil || code < 0 || code > MaxFormatCode {
			continue
		}
		m[strings.TrimSpace(entry[:colon])] = code
	}
	return m
}

// Recode applies the format override for the node to value and returns the
// text to write together with its encoding.
func (p DumpParameters) Recode(typeName, iname, value string) (string, int) {
	switch f := p.Format(typeName, iname); f {
	case FormatHex, FormatDecimal, FormatOctal, FormatBinary:
		if n, ok := parseInteger(value); ok {
			value = formatInteger(n, f)
		}
	}
	if !p.HumanReadable() && needsEncoding(value) {
		return hex.EncodeToString([]byte(value)), ValueEncodingHexUTF
	}
	return value, ValueEncodingNone
}

// parseInteger parses the leading token of a backend value ("42",
// "0x2a", "97 'a'").
func parseInteger(value string) (int64, bool) {
	tok := strings.TrimSpace(value)
	if i := strings.IndexAny(tok, " \t"); i >= 0 {
		tok = tok[:i]
	}
	if tok == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return n, true
	}
	if u, err := strconv.ParseUint(tok, 0, 64); err == nil {
		return int64(u), true
	}
	return 0, false
}

func formatInteger(n int64, format int) string {
	neg := n < 0
	u := uint64(n)
	if neg {
		u = uint64(-n)
	}
	var s string
	switch format {
	case FormatHex:
		s = "0x" + strconv.FormatUint(u, 16)
	case FormatOctal:
		s = strconv.FormatUint(u, 8)
		if u != 0 {
			s = "0" + s
		}
	case FormatBinary:
		s = "0b" + strconv.FormatUint(u, 2)
	default:
		s = strconv.FormatUint(u, 10)
	}
	if neg {
		return "-" + s
	}
	return s
}

func needsEncoding(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c >= 0x7f || c == '"' || c == '\\' {
			return true
		}
	}
	return false
}

// escapeValue escapes a value for a quoted protocol field.
func escapeValue(s string) string {
	if !needsEncoding(s) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
