package dict

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// ArgType identifies the wire representation of one argument.
type ArgType uint8

const (
	ArgU8 ArgType = iota + 1
	ArgI8
	ArgU16
	ArgI16
	ArgU32
	ArgI32
	ArgU64
	ArgI64
	ArgFloat
	ArgDouble
	ArgString
	ArgEnum
	ArgBlob
)

func (t ArgType) String() string {
	switch t {
	case ArgU8:
		return "u8"
	case ArgI8:
		return "i8"
	case ArgU16:
		return "u16"
	case ArgI16:
		return "i16"
	case ArgU32:
		return "u32"
	case ArgI32:
		return "i32"
	case ArgU64:
		return "u64"
	case ArgI64:
		return "i64"
	case ArgFloat:
		return "float"
	case ArgDouble:
		return "double"
	case ArgString:
		return "string"
	case ArgEnum:
		return "enum"
	case ArgBlob:
		return "blob"
	default:
		return fmt.Sprintf("argtype(%d)", uint8(t))
	}
}

// wireSize returns the fixed byte width of t, or ok=false for the
// variable-width types (string, blob).
func (t ArgType) wireSize() (int, bool) {
	switch t {
	case ArgU8, ArgI8:
		return 1, true
	case ArgU16, ArgI16:
		return 2, true
	case ArgU32, ArgI32, ArgEnum, ArgFloat:
		return 4, true
	case ArgU64, ArgI64, ArgDouble:
		return 8, true
	default:
		return 0, false
	}
}

// Value is one decoded argument. Type selects which storage field is set:
// unsigned integers use Uint, signed integers and enums use Int, float and
// double use Float, string uses Str, blob uses Blob.
type Value struct {
	Type  ArgType
	Uint  uint64
	Int   int64
	Float float64
	Str   string
	Blob  []byte
}

// Key renders the value as a canonical map key for map-kind commands.
func (v Value) Key() string {
	switch v.Type {
	case ArgU8, ArgU16, ArgU32, ArgU64:
		return strconv.FormatUint(v.Uint, 10)
	case ArgI8, ArgI16, ArgI32, ArgI64, ArgEnum:
		return strconv.FormatInt(v.Int, 10)
	case ArgFloat, ArgDouble:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ArgString:
		return v.Str
	case ArgBlob:
		return hex.EncodeToString(v.Blob)
	default:
		return ""
	}
}

// Clone returns a copy that shares no mutable state with v.
func (v Value) Clone() Value {
	out := v
	if v.Blob != nil {
		out.Blob = append([]byte(nil), v.Blob...)
	}
	return out
}

// Equal reports whether two values have the same type and content.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ArgU8, ArgU16, ArgU32, ArgU64:
		return v.Uint == other.Uint
	case ArgI8, ArgI16, ArgI32, ArgI64, ArgEnum:
		return v.Int == other.Int
	case ArgFloat, ArgDouble:
		return v.Float == other.Float
	case ArgString:
		return v.Str == other.Str
	case ArgBlob:
		if len(v.Blob) != len(other.Blob) {
			return false
		}
		for i := range v.Blob {
			if v.Blob[i] != other.Blob[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Args maps argument names to values for one command occurrence.
type Args map[string]Value

// Clone returns a deep copy of a.
func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}

// ArgsOf zips decoded positional values with the schema's argument names.
func (s *Schema) ArgsOf(vals []Value) Args {
	out := make(Args, len(vals))
	for i, v := range vals {
		if i >= len(s.Args) {
			break
		}
		out[s.Args[i].Name] = v
	}
	return out
}
