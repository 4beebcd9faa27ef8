package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Describe renders the populated fields of a struct as indented report lines, one per field.
// Nested structs are walked with their field name appended to prefix. The `fmt` struct tag picks
// how []byte values are shown: "ascii", "int", or upper-case hex by default.
func Describe(prefix string, s any) []string {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}

	typ := val.Type()
	var lines []string
	for i := 0; i < val.NumField(); i++ {
		field, sf := val.Field(i), typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag := sf.Tag.Get("tlv"); tag != "" && !strings.HasPrefix(tag, ",") {
			name = fmt.Sprintf("%s (%s)", name, strings.ToUpper(tag))
		}

		switch {
		case field.Type() == reflect.TypeOf([]bertlv.TLV(nil)):
			for _, p := range field.Interface().([]bertlv.TLV) {
				lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %s", prefix, p.Tag, strings.ToUpper(hex.EncodeToString(p.Value))))
			}
		case isByteSlice(field):
			if field.Len() > 0 {
				lines = append(lines, fmt.Sprintf("    - %s.%s: %s", prefix, name, formatBytes(field.Bytes(), sf.Tag.Get("fmt"))))
			}
		case field.Kind() == reflect.String:
			if field.Len() > 0 {
				lines = append(lines, fmt.Sprintf("    - %s.%s: %s", prefix, name, field.String()))
			}
		case isUint(field):
			if field.Uint() != 0 {
				lines = append(lines, fmt.Sprintf("    - %s.%s: %d", prefix, name, field.Uint()))
			}
		case field.Kind() == reflect.Struct, field.Kind() == reflect.Pointer:
			lines = append(lines, Describe(prefix+"."+sf.Name, field.Interface())...)
		}
	}
	return lines
}

// WriteStructFields appends Describe's lines to sb without a trailing newline,
// separating them from earlier content with one.
func WriteStructFields(sb *strings.Builder, prefix string, s any) {
	lines := Describe(prefix, s)
	if len(lines) == 0 {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Join(lines, "\n"))
}

func formatBytes(data []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, SafeASCII(data))
	case "int":
		var n uint64
		for _, b := range data {
			n = n<<8 | uint64(b)
		}
		return fmt.Sprintf("%X (Dec: %d)", data, n)
	default:
		return strings.ToUpper(hex.EncodeToString(data))
	}
}

// SafeASCII replaces every byte outside printable ASCII with a dot.
func SafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
