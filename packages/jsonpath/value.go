package jsonpath

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind identifies which JSON type a Value holds.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Member is a single key/value pair of an object, kept in document order.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable JSON value. The zero Value is JSON null.
type Value struct {
	kind    Kind
	b       bool
	num     float64
	str     string // string contents, or the literal text of a number
	items   []Value
	members []Member
}

var ErrEmptyDocument = errors.New("empty JSON document")

func NullValue() Value           { return Value{} }
func BoolValue(b bool) Value     { return Value{kind: Bool, b: b} }
func StringValue(s string) Value { return Value{kind: String, str: s} }

func NumberValue(f float64) Value {
	return Value{kind: Number, num: f, str: strconv.FormatFloat(f, 'f', -1, 64)}
}

func intValue(i int64) Value {
	return Value{kind: Number, num: float64(i), str: strconv.FormatInt(i, 10)}
}

func uintValue(u uint64) Value {
	return Value{kind: Number, num: float64(u), str: strconv.FormatUint(u, 10)}
}

func ArrayValue(items ...Value) Value {
	return Value{kind: Array, items: items}
}

func ObjectValue(members ...Member) Value {
	return Value{kind: Object, members: members}
}

// Parse decodes a JSON document into a Value.
func Parse(data []byte) (Value, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Value{}, ErrEmptyDocument
	}
	if !gjson.ValidBytes(data) {
		return Value{}, fmt.Errorf("invalid JSON document")
	}
	return FromResult(gjson.ParseBytes(data)), nil
}

// FromResult converts a gjson result into a Value. Object members keep
// the order they have in the source document.
func FromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.False:
		return BoolValue(false)
	case gjson.True:
		return BoolValue(true)
	case gjson.Number:
		raw := strings.TrimSpace(r.Raw)
		if raw == "" {
			return NumberValue(r.Num)
		}
		return Value{kind: Number, num: r.Num, str: raw}
	case gjson.String:
		return StringValue(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			items := make([]Value, 0)
			r.ForEach(func(_, v gjson.Result) bool {
				items = append(items, FromResult(v))
				return true
			})
			return ArrayValue(items...)
		}
		members := make([]Member, 0)
		r.ForEach(func(k, v gjson.Result) bool {
			members = append(members, Member{Key: k.Str, Value: FromResult(v)})
			return true
		})
		return ObjectValue(members...)
	default:
		return NullValue()
	}
}

// FromGo converts a Go value into a Value. Supported inputs are nil, bool,
// Go numeric types, string, json.Number, []any, map[string]any and Value.
// Map keys are sorted so the result is deterministic.
func FromGo(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Value{kind: Number, num: f, str: t.String()}, nil
	case int:
		return intValue(int64(t)), nil
	case int8:
		return intValue(int64(t)), nil
	case int16:
		return intValue(int64(t)), nil
	case int32:
		return intValue(int64(t)), nil
	case int64:
		return intValue(int64(t)), nil
	case uint:
		return uintValue(uint64(t)), nil
	case uint8:
		return uintValue(uint64(t)), nil
	case uint16:
		return uintValue(uint64(t)), nil
	case uint32:
		return uintValue(uint64(t)), nil
	case uint64:
		return uintValue(uint64(t)), nil
	case float32:
		return NumberValue(float64(t)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, fmt.Errorf("unsupported number %v", t)
		}
		return NumberValue(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			iv, err := FromGo(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = iv
		}
		return ArrayValue(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, len(keys))
		for i, k := range keys {
			mv, err := FromGo(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			members[i] = Member{Key: k, Value: mv}
		}
		return ObjectValue(members...), nil
	default:
		return Value{}, fmt.Errorf("unsupported type %T", v)
	}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == Bool
}

func (v Value) Float() (float64, bool) {
	return v.num, v.kind == Number
}

func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.str, true
}

// Len returns the number of items of an array or members of an object.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.items)
	case Object:
		return len(v.members)
	default:
		return 0
	}
}

// Index returns the i-th array item. Negative indexes count from the end.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != Array {
		return Value{}, false
	}
	if i < 0 {
		i += len(v.items)
	}
	if i < 0 || i >= len(v.items) {
		return Value{}, false
	}
	return v.items[i], true
}

// Get returns the object member named key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	return v.items
}

func (v Value) Members() []Member {
	if v.kind != Object {
		return nil
	}
	return v.members
}

// Interface converts the Value back to plain Go types as encoding/json
// would produce them.
func (v Value) Interface() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.num
	case String:
		return v.str
	case Array:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.members))
		for _, m := range v.members {
			out[m.Key] = m.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether two values are the same JSON value. Kinds must
// match exactly, so the number 5 never equals the string "5". Object
// member order is ignored.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == other.b
	case Number:
		return numbersEqual(v, other)
	case String:
		return v.str == other.str
	case Array:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(v.members) != len(other.members) {
			return false
		}
		for _, m := range v.members {
			om, ok := other.Get(m.Key)
			if !ok || !m.Value.Equal(om) {
				return false
			}
		}
		return true
	}
	return false
}

// numbersEqual compares integer literals exactly, since float64 cannot
// tell integers above 2^53 apart. Anything else compares as float64.
func numbersEqual(a, b Value) bool {
	if isIntegerLiteral(a.str) && isIntegerLiteral(b.str) {
		x, okx := new(big.Int).SetString(a.str, 10)
		y, oky := new(big.Int).SetString(b.str, 10)
		if okx && oky {
			return x.Cmp(y) == 0
		}
	}
	return a.num == b.num
}

func isIntegerLiteral(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String renders the value as compact JSON.
func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb)
	return sb.String()
}

func (v Value) write(sb *strings.Builder) {
	switch v.kind {
	case Null:
		sb.WriteString("null")
	case Bool:
		sb.WriteString(strconv.FormatBool(v.b))
	case Number:
		sb.WriteString(v.str)
	case String:
		b, _ := json.Marshal(v.str)
		sb.Write(b)
	case Array:
		sb.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.write(sb)
		}
		sb.WriteByte(']')
	case Object:
		sb.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				sb.WriteByte(',')
			}
			k, _ := json.Marshal(m.Key)
			sb.Write(k)
			sb.WriteByte(':')
			m.Value.write(sb)
		}
		sb.WriteByte('}')
	}
}

// MarshalJSON lets a Value be embedded in encoded reports.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}
