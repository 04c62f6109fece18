package protopool

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultValue is the computed default of a field. The set of
// implementations is closed: FloatDefault, StringDefault, BoolDefault,
// EnumDefault, BytesDefault, IntDefault, UintDefault and RepeatedDefault.
// Message-typed fields have no default (nil).
type DefaultValue interface {
	// Interface returns the default as a plain Go value.
	Interface() any
	isDefaultValue()
}

type (
	FloatDefault  float64
	StringDefault string
	BoolDefault   bool
	EnumDefault   int32
	BytesDefault  []byte
	IntDefault    int64
	UintDefault   uint64
	// RepeatedDefault is the empty sequence every repeated field defaults to.
	RepeatedDefault struct{}
)

func (v FloatDefault) Interface() any { return float64(v) }
func (v StringDefault) Interface() any { return string(v) }
func (v BoolDefault) Interface() any { return bool(v) }
func (v EnumDefault) Interface() any { return int32(v) }
func (v BytesDefault) Interface() any { return []byte(v) }
func (v IntDefault) Interface() any { return int64(v) }
func (v UintDefault) Interface() any { return uint64(v) }
func (RepeatedDefault) Interface() any { return []any{} }
func (FloatDefault) isDefaultValue() {}
func (StringDefault) isDefaultValue() {}
func (BoolDefault) isDefaultValue() {}
func (EnumDefault) isDefaultValue() {}
func (BytesDefault) isDefaultValue() {}
func (IntDefault) isDefaultValue() {}
func (UintDefault) isDefaultValue() {}
func (RepeatedDefault) isDefaultValue() {}

// computeDefault derives a field's default from its resolved type. literal
// is the explicit default from the schema, meaningful only when hasLiteral.
// The field's EnumType must already be resolved.
func computeDefault(f *FieldDescriptor, literal string, hasLiteral bool) (DefaultValue, bool, error) {
	if f.Label == LabelRepeated {
		return RepeatedDefault{}, false, nil
	}

	switch f.Type {
	case TypeDouble, TypeFloat:
		if !hasLiteral {
			return FloatDefault(0), false, nil
		}
		v, err := parseFloatLiteral(literal)
		if err != nil {
			return nil, false, err
		}
		return FloatDefault(v), true, nil

	case TypeString:
		return StringDefault(literal), hasLiteral, nil

	case TypeBool:
		return BoolDefault(hasLiteral && strings.ToLower(literal) == "true"), hasLiteral, nil

	case TypeEnum:
		if f.EnumType == nil || len(f.EnumType.Values) == 0 {
			return nil, false, fmt.Errorf("enum field %s has no values to default to", f.FullName)
		}
		if !hasLiteral {
			return EnumDefault(f.EnumType.Values[0].Number), false, nil
		}
		v := f.EnumType.ValueByName(literal)
		if v == nil {
			return nil, false, fmt.Errorf("default %q is not a value of %s", literal, f.EnumType.FullName)
		}
		return EnumDefault(v.Number), true, nil

	case TypeBytes:
		if !hasLiteral {
			return BytesDefault{}, false, nil
		}
		b, err := cUnescape(literal)
		if err != nil {
			return nil, false, err
		}
		return BytesDefault(b), true, nil

	case TypeUint32, TypeUint64, TypeFixed32, TypeFixed64:
		if !hasLiteral {
			return UintDefault(0), false, nil
		}
		v, err := strconv.ParseUint(literal, 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("parse default %q: %w", literal, err)
		}
		return UintDefault(v), true, nil

	case TypeMessage, TypeGroup:
		if hasLiteral {
			return nil, false, fmt.Errorf("message field %s cannot carry a default", f.FullName)
		}
		return nil, false, nil
	}

	if !hasLiteral {
		return IntDefault(0), false, nil
	}
	v, err := strconv.ParseInt(literal, 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parse default %q: %w", literal, err)
	}
	return IntDefault(v), true, nil
}

func parseFloatLiteral(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse default %q: %w", s, err)
	}
	return v, nil
}

// cUnescape decodes the C-style escapes used for bytes defaults: \n \r \t
// \a \b \f \v \\ \' \" \?, octal \NNN (1-3 digits) and hex \xHH (1-2
// digits).
func cUnescape(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(s) {
			return nil, fmt.Errorf("unescape %q: trailing backslash", s)
		}
		switch c = s[i]; c {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'a':
			out = append(out, '\a')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'v':
			out = append(out, '\v')
		case '\\', '\'', '"', '?':
			out = append(out, c)
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := 0
			j := i
			for ; j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7'; j++ {
				v = v*8 + int(s[j]-'0')
			}
			if v > 0xff {
				return nil, fmt.Errorf("unescape %q: octal escape out of range", s)
			}
			out = append(out, byte(v))
			i = j - 1
		case 'x', 'X':
			v := 0
			j := i + 1
			for ; j < len(s) && j < i+3 && isHex(s[j]); j++ {
				v = v*16 + hexVal(s[j])
			}
			if j == i+1 {
				return nil, fmt.Errorf("unescape %q: \\x without digits", s)
			}
			out = append(out, byte(v))
			i = j - 1
		default:
			return nil, fmt.Errorf("unescape %q: unknown escape \\%c", s, c)
		}
	}
	return out, nil
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func hexVal(c byte) int {
	switch {
	case c <= '9':
		return int(c - '0')
	case c >= 'a':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}
