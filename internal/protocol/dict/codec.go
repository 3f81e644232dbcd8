package dict

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// CommandHeaderLen is the wire prefix of every command payload:
// project id, class id, u16 command id.
const CommandHeaderLen = 4

var (
	ErrArgCount     = errors.New("dict: argument count mismatch")
	ErrArgType      = errors.New("dict: argument type mismatch")
	ErrArgRange     = errors.New("dict: argument value out of range")
	ErrShortPayload = errors.New("dict: payload too short")
	ErrTrailing     = errors.New("dict: trailing bytes after last argument")
	ErrUnterminated = errors.New("dict: unterminated string argument")
)

// Encode packs the command header and positional arguments into wire bytes.
// Arguments are native Go values converted per the schema's argument specs;
// any mismatch rejects the whole command.
func Encode(s *Schema, args ...any) ([]byte, error) {
	if len(args) != len(s.Args) {
		return nil, fmt.Errorf("%w: %s wants %d args, got %d", ErrArgCount, s.Name(), len(s.Args), len(args))
	}
	buf := make([]byte, CommandHeaderLen, CommandHeaderLen+8*len(args))
	buf[0] = s.ProjectID
	buf[1] = s.ClassID
	binary.LittleEndian.PutUint16(buf[2:4], s.CommandID)
	for i, spec := range s.Args {
		var err error
		buf, err = appendArg(buf, spec, args[i])
		if err != nil {
			return nil, fmt.Errorf("%s arg %q: %w", s.Name(), spec.Name, err)
		}
	}
	return buf, nil
}

// Decode resolves the payload's command header against the table and decodes
// its arguments. A NotFoundError leaves the frame droppable without schema
// context; argument errors carry the resolved schema for diagnostics.
func (t *Table) Decode(payload []byte) (*Schema, []Value, error) {
	if len(payload) < CommandHeaderLen {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(payload))
	}
	s, err := t.ByID(payload[0], payload[1], binary.LittleEndian.Uint16(payload[2:4]))
	if err != nil {
		return nil, nil, err
	}
	vals, err := DecodeArgs(s, payload[CommandHeaderLen:])
	if err != nil {
		return s, nil, err
	}
	return s, vals, nil
}

// DecodeArgs walks the schema's argument specs over b, consuming exactly the
// declared bytes. Leftover or missing bytes fail the whole frame.
func DecodeArgs(s *Schema, b []byte) ([]Value, error) {
	vals := make([]Value, 0, len(s.Args))
	for _, spec := range s.Args {
		v, n, err := readArg(spec, b)
		if err != nil {
			return nil, fmt.Errorf("%s arg %q: %w", s.Name(), spec.Name, err)
		}
		vals = append(vals, v)
		b = b[n:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailing, len(b))
	}
	return vals, nil
}

func appendArg(dst []byte, spec ArgSpec, arg any) ([]byte, error) {
	switch spec.Type {
	case ArgU8:
		v, err := coerceUint(arg, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		return append(dst, uint8(v)), nil
	case ArgI8:
		v, err := coerceInt(arg, math.MinInt8, math.MaxInt8)
		if err != nil {
			return nil, err
		}
		return append(dst, byte(int8(v))), nil
	case ArgU16:
		v, err := coerceUint(arg, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint16(dst, uint16(v)), nil
	case ArgI16:
		v, err := coerceInt(arg, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint16(dst, uint16(int16(v))), nil
	case ArgU32:
		v, err := coerceUint(arg, math.MaxUint32)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint32(dst, uint32(v)), nil
	case ArgI32, ArgEnum:
		v, err := coerceInt(arg, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint32(dst, uint32(int32(v))), nil
	case ArgU64:
		v, err := coerceUint(arg, math.MaxUint64)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint64(dst, v), nil
	case ArgI64:
		v, err := coerceInt(arg, math.MinInt64, math.MaxInt64)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint64(dst, uint64(v)), nil
	case ArgFloat:
		f, err := coerceFloat(arg)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(f))), nil
	case ArgDouble:
		f, err := coerceFloat(arg)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(f)), nil
	case ArgString:
		str, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("%w: want string, got %T", ErrArgType, arg)
		}
		if bytes.IndexByte([]byte(str), 0) >= 0 {
			return nil, fmt.Errorf("%w: string contains NUL", ErrArgRange)
		}
		dst = append(dst, str...)
		return append(dst, 0), nil
	case ArgBlob:
		blob, ok := arg.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: want []byte, got %T", ErrArgType, arg)
		}
		if len(blob) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: blob too large", ErrArgRange)
		}
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(blob)))
		return append(dst, blob...), nil
	default:
		return nil, fmt.Errorf("%w: unsupported arg type %v", ErrArgType, spec.Type)
	}
}

func readArg(spec ArgSpec, b []byte) (Value, int, error) {
	if width, fixed := spec.Type.wireSize(); fixed {
		if len(b) < width {
			return Value{}, 0, fmt.Errorf("%w: want %d bytes, have %d", ErrShortPayload, width, len(b))
		}
		v := Value{Type: spec.Type}
		switch spec.Type {
		case ArgU8:
			v.Uint = uint64(b[0])
		case ArgI8:
			v.Int = int64(int8(b[0]))
		case ArgU16:
			v.Uint = uint64(binary.LittleEndian.Uint16(b))
		case ArgI16:
			v.Int = int64(int16(binary.LittleEndian.Uint16(b)))
		case ArgU32:
			v.Uint = uint64(binary.LittleEndian.Uint32(b))
		case ArgI32, ArgEnum:
			v.Int = int64(int32(binary.LittleEndian.Uint32(b)))
		case ArgU64:
			v.Uint = binary.LittleEndian.Uint64(b)
		case ArgI64:
			v.Int = int64(binary.LittleEndian.Uint64(b))
		case ArgFloat:
			v.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case ArgDouble:
			v.Float = math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		return v, width, nil
	}

	switch spec.Type {
	case ArgString:
		idx := bytes.IndexByte(b, 0)
		if idx < 0 {
			return Value{}, 0, ErrUnterminated
		}
		return Value{Type: ArgString, Str: string(b[:idx])}, idx + 1, nil
	case ArgBlob:
		if len(b) < 4 {
			return Value{}, 0, fmt.Errorf("%w: blob length prefix", ErrShortPayload)
		}
		n := binary.LittleEndian.Uint32(b)
		if uint32(len(b)-4) < n {
			return Value{}, 0, fmt.Errorf("%w: blob wants %d bytes, have %d", ErrShortPayload, n, len(b)-4)
		}
		blob := make([]byte, n)
		copy(blob, b[4:4+n])
		return Value{Type: ArgBlob, Blob: blob}, 4 + int(n), nil
	default:
		return Value{}, 0, fmt.Errorf("%w: unsupported arg type %v", ErrArgType, spec.Type)
	}
}

func coerceUint(arg any, max uint64) (uint64, error) {
	var v uint64
	switch n := arg.(type) {
	case uint8:
		v = uint64(n)
	case uint16:
		v = uint64(n)
	case uint32:
		v = uint64(n)
	case uint64:
		v = n
	case uint:
		v = uint64(n)
	case int8:
		if n < 0 {
			return 0, fmt.Errorf("%w: negative value %d", ErrArgRange, n)
		}
		v = uint64(n)
	case int16:
		if n < 0 {
			return 0, fmt.Errorf("%w: negative value %d", ErrArgRange, n)
		}
		v = uint64(n)
	case int32:
		if n < 0 {
			return 0, fmt.Errorf("%w: negative value %d", ErrArgRange, n)
		}
		v = uint64(n)
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("%w: negative value %d", ErrArgRange, n)
		}
		v = uint64(n)
	case int:
		if n < 0 {
			return 0, fmt.Errorf("%w: negative value %d", ErrArgRange, n)
		}
		v = uint64(n)
	default:
		return 0, fmt.Errorf("%w: want unsigned integer, got %T", ErrArgType, arg)
	}
	if v > max {
		return 0, fmt.Errorf("%w: %d exceeds %d", ErrArgRange, v, max)
	}
	return v, nil
}

func coerceInt(arg any, min, max int64) (int64, error) {
	var v int64
	switch n := arg.(type) {
	case int8:
		v = int64(n)
	case int16:
		v = int64(n)
	case int32:
		v = int64(n)
	case int64:
		v = n
	case int:
		v = int64(n)
	case uint8:
		v = int64(n)
	case uint16:
		v = int64(n)
	case uint32:
		v = int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrArgRange, n)
		}
		v = int64(n)
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrArgRange, n)
		}
		v = int64(n)
	default:
		return 0, fmt.Errorf("%w: want integer, got %T", ErrArgType, arg)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%w: %d outside [%d, %d]", ErrArgRange, v, min, max)
	}
	return v, nil
}

func coerceFloat(arg any) (float64, error) {
	switch n := arg.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: want float, got %T", ErrArgType, arg)
	}
}
