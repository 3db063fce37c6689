package value

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// FromEngine converts a value returned by a database engine into a Value
// that can be written to the response stream.
//
// Temporal values become RFC 3339 text, decimals become floats (lossy),
// byte slices become base64 text and UUIDs their canonical text. Slices and
// string-keyed maps are converted element by element. Any other type is
// passed through JSON and, failing that, rendered with fmt.Sprint; the
// conversion never fails so an unexpected column type cannot break the
// response stream.
func FromEngine(x any) Value {
	switch v := x.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case bool:
		return Bool(v)
	case int64:
		return Int(v)
	case int:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case float64:
		return Float(v)
	case float32:
		return Float(float64(v))
	case string:
		return Text(v)
	case []byte:
		return Binary(v)
	case time.Time:
		return Text(formatTime(v))
	case *time.Time:
		if v == nil {
			return Null()
		}
		return Text(formatTime(*v))
	case uuid.UUID:
		return Text(v.String())
	case *big.Rat:
		if v == nil {
			return Null()
		}
		f, _ := v.Float64()
		return Float(f)
	case *big.Float:
		if v == nil {
			return Null()
		}
		f, _ := v.Float64()
		return Float(f)
	case big.Float:
		f, _ := v.Float64()
		return Float(f)
	case *big.Int:
		if v == nil {
			return Null()
		}
		if v.IsInt64() {
			return Int(v.Int64())
		}
		f, _ := new(big.Float).SetInt(v).Float64()
		return Float(f)
	case json.Number:
		if n, err := fromNumber(v); err == nil {
			return n
		}
		return Text(v.String())
	case []any:
		list := make([]Value, len(v))
		for i, e := range v {
			list[i] = FromEngine(e)
		}
		return List(list...)
	case map[string]any:
		m := make(map[string]Value, len(v))
		for k, e := range v {
			m[k] = FromEngine(e)
		}
		return Map(m)
	}
	return fromReflect(x)
}

// formatTime renders t as RFC 3339, keeping sub-second precision only when
// it is present.
func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// fromReflect handles named and sized types the switch above does not list.
func fromReflect(x any) Value {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return FromEngine(rv.Elem().Interface())
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Float(float64(u))
		}
		return Int(int64(u))
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	case reflect.String:
		return Text(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			for i := range b {
				b[i] = byte(rv.Index(i).Uint())
			}
			return Binary(b)
		}
		list := make([]Value, rv.Len())
		for i := range list {
			list[i] = FromEngine(rv.Index(i).Interface())
		}
		return List(list...)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]Value, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = FromEngine(iter.Value().Interface())
			}
			return Map(m)
		}
	}
	if s, ok := x.(fmt.Stringer); ok {
		return Text(s.String())
	}
	if b, err := json.Marshal(x); err == nil {
		var out Value
		if err := out.UnmarshalJSON(b); err == nil {
			return out
		}
	}
	return Text(fmt.Sprint(x))
}
