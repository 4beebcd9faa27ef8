// Package tlv maps BER-TLV data onto Go structs, on top of github.com/moov-io/bertlv.
//
// A field takes part when it carries a `tlv:"<tag>"` struct tag. Supported field types:
//
//   - []byte: the raw value (the re-encoded children for a constructed tag);
//   - string: upper-case hex, or text with `fmt:"ascii"`;
//   - unsigned integers: the value read big-endian;
//   - a struct or pointer to struct: the nested template;
//   - a slice of structs: one element per occurrence of the tag;
//   - any type implementing Unmarshaler.
//
// A []bertlv.TLV field tagged `tlv:",unknown"` (or named Unknown) collects what no other field claimed.
package tlv

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// ErrTagNotFound is returned by Find when the tag does not occur.
var ErrTagNotFound = errors.New("tlv: tag not found")

// Unmarshaler lets a type decode its own TLV value.
type Unmarshaler interface {
	UnmarshalTLV(value []byte) error
}

// Unmarshal decodes data and fills target, which must be a non-nil pointer to a struct.
func Unmarshal(data []byte, target any) error {
	tlvs, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return unmarshalTLVs(tlvs, target)
}

func unmarshalTLVs(tlvs []bertlv.TLV, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to a struct, got %T", target)
	}
	v = v.Elem()
	t := v.Type()

	claimed := make([]bool, len(tlvs))
	var unknown reflect.Value

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, _, _ := strings.Cut(sf.Tag.Get("tlv"), ",")
		if isUnknownField(sf) {
			unknown = v.Field(i)
			continue
		}
		if tag == "" {
			continue
		}

		for idx, packet := range tlvs {
			if !strings.EqualFold(packet.Tag, tag) {
				continue
			}
			if err := assign(packet, v.Field(i), sf); err != nil {
				return fmt.Errorf("tag %s (%s): %w", tag, sf.Name, err)
			}
			claimed[idx] = true
		}
	}

	if unknown.IsValid() && unknown.CanSet() {
		var rest []bertlv.TLV
		for idx, packet := range tlvs {
			if !claimed[idx] {
				rest = append(rest, packet)
			}
		}
		if len(rest) > 0 {
			unknown.Set(reflect.ValueOf(rest))
		}
	}
	return nil
}

func isUnknownField(sf reflect.StructField) bool {
	if sf.Type != reflect.TypeOf([]bertlv.TLV(nil)) {
		return false
	}
	return sf.Tag.Get("tlv") == ",unknown" || sf.Name == "Unknown"
}

// assign stores one occurrence of a tag into field.
func assign(packet bertlv.TLV, field reflect.Value, sf reflect.StructField) error {
	if field.Kind() == reflect.Slice && !isByteSlice(field) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeValue(packet, elem, sf); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decodeValue(packet, field, sf)
}

func decodeValue(packet bertlv.TLV, field reflect.Value, sf reflect.StructField) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(rawValue(packet))
		}
	}

	switch {
	case isByteSlice(field):
		field.SetBytes(append([]byte(nil), rawValue(packet)...))
	case field.Kind() == reflect.String:
		if sf.Tag.Get("fmt") == "ascii" {
			field.SetString(string(packet.Value))
		} else {
			field.SetString(strings.ToUpper(hex.EncodeToString(packet.Value)))
		}
	case isUint(field):
		if len(packet.Value) > 8 {
			return fmt.Errorf("%d bytes do not fit an integer", len(packet.Value))
		}
		var n uint64
		for _, b := range packet.Value {
			n = n<<8 | uint64(b)
		}
		if field.OverflowUint(n) {
			return fmt.Errorf("value %d overflows %s", n, field.Type())
		}
		field.SetUint(n)
	case field.Kind() == reflect.Struct:
		return decodeNested(packet, field.Addr().Interface())
	case field.Kind() == reflect.Pointer && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return decodeNested(packet, field.Interface())
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

func decodeNested(packet bertlv.TLV, target any) error {
	if len(packet.TLVs) > 0 {
		return unmarshalTLVs(packet.TLVs, target)
	}
	return Unmarshal(packet.Value, target)
}

// rawValue returns the value bytes, re-encoding children of a constructed tag.
func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

// Find searches data depth-first for tag (hex, e.g. "9F7F") and returns its value.
func Find(data []byte, tag string) ([]byte, error) {
	tlvs, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bertlv decode failed: %w", err)
	}
	if p, ok := find(tlvs, tag); ok {
		return rawValue(p), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTagNotFound, strings.ToUpper(tag))
}

func find(tlvs []bertlv.TLV, tag string) (bertlv.TLV, bool) {
	for _, p := range tlvs {
		if strings.EqualFold(p.Tag, tag) {
			return p, true
		}
		if found, ok := find(p.TLVs, tag); ok {
			return found, true
		}
	}
	return bertlv.TLV{}, false
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}

func isUint(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
