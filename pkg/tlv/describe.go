package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/moov-io/bertlv"
)

// Describe renders a TLV-tagged struct as an indented, human-readable report.
// Field formatting is driven by the optional `fmt` struct tag:
//   - "ascii": printable text (falls back to hex when not printable)
//   - "int":   big-endian integer
//   - default: hex dump
func Describe(title string, s interface{}) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== %s ===", title))
	writeStructFields(&sb, s)
	return sb.String()
}

func writeStructFields(sb *strings.Builder, s interface{}) {
	val := reflect.ValueOf(s)

	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8 {
			if line := formatByteSliceField(field, fieldType); line != "" {
				sb.WriteString("\n" + line)
			}
			continue
		}

		if field.Type() == reflect.TypeOf([]bertlv.TLV{}) {
			for _, p := range field.Interface().([]bertlv.TLV) {
				sb.WriteString(fmt.Sprintf("\n    - (unmapped %s): %s", p.Tag, hex.EncodeToString(p.Value)))
			}
			continue
		}

		if field.Kind() == reflect.Struct || (field.Kind() == reflect.Ptr && !field.IsNil()) {
			writeStructFields(sb, field.Interface())
		}
	}
}

func formatByteSliceField(field reflect.Value, fieldType reflect.StructField) string {
	if field.IsNil() || field.Len() == 0 {
		return ""
	}

	name := fieldType.Name
	if tag := fieldType.Tag.Get("tlv"); tag != "" {
		name = fmt.Sprintf("%s (%s)", name, strings.Split(tag, ",")[0])
	}

	return fmt.Sprintf("    - %s: %s", name, formatByteValue(field.Bytes(), fieldType.Tag.Get("fmt")))
}

func formatByteValue(value []byte, format string) string {
	switch format {
	case "ascii":
		if isPrintable(value) {
			return fmt.Sprintf("%q", string(value))
		}
	case "int":
		var n uint64
		if len(value) <= 8 {
			for _, b := range value {
				n = n<<8 | uint64(b)
			}
			return fmt.Sprintf("%d", n)
		}
	}
	return hex.EncodeToString(value)
}

func isPrintable(value []byte) bool {
	for _, b := range value {
		if b > unicode.MaxASCII || !unicode.IsPrint(rune(b)) {
			return false
		}
	}
	return true
}
