package jsonpath

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Kinds(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
	}{
		{`null`, Null},
		{`true`, Bool},
		{`false`, Bool},
		{`2004`, Number},
		{`-1.5e3`, Number},
		{`"tigerlily"`, String},
		{`[1, "a"]`, Array},
		{`{"id": 5}`, Object},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = Parse([]byte("   "))
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = Parse([]byte(`{"id": `))
	assert.Error(t, err)
}

func TestParse_KeepsMemberOrder(t *testing.T) {
	v, err := Parse([]byte(`{"name":"NewUser","job":"qa","id":"123"}`))
	require.NoError(t, err)

	keys := make([]string, 0)
	for _, m := range v.Members() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"name", "job", "id"}, keys)
	assert.Equal(t, `{"name":"NewUser","job":"qa","id":"123"}`, v.String())
}

func TestValue_Accessors(t *testing.T) {
	v, err := Parse([]byte(`{"year": 2004, "name": "tigerlily", "active": true}`))
	require.NoError(t, err)

	year, _ := v.Get("year")
	f, ok := year.Float()
	assert.True(t, ok)
	assert.Equal(t, 2004.0, f)
	_, ok = year.Str()
	assert.False(t, ok)

	name, _ := v.Get("name")
	s, ok := name.Str()
	assert.True(t, ok)
	assert.Equal(t, "tigerlily", s)

	active, _ := v.Get("active")
	b, ok := active.Bool()
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = name.Index(0)
	assert.False(t, ok)
	_, ok = name.Get("x")
	assert.False(t, ok)
	assert.Equal(t, 3, v.Len())
}

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Value
		equal bool
	}{
		{"same number", NumberValue(2000), NumberValue(2000), true},
		{"number vs string", NumberValue(2000), StringValue("2000"), false},
		{"integers above 2^53", mustParse(t, "9007199254740993"), mustParse(t, "9007199254740992"), false},
		{"same large integer", mustParse(t, "9007199254740993"), mustFromGo(t, int64(9007199254740993)), true},
		{"large unsigned", mustFromGo(t, uint64(18446744073709551615)), mustParse(t, "18446744073709551614"), false},
		{"integer vs decimal", mustParse(t, "1"), mustParse(t, "1.0"), true},
		{"integer vs exponent", mustParse(t, "1000"), mustParse(t, "1e3"), true},
		{"string vs number", StringValue("15-4020"), NumberValue(15), false},
		{"null vs null", NullValue(), NullValue(), true},
		{"null vs empty string", NullValue(), StringValue(""), false},
		{"bool", BoolValue(true), BoolValue(false), false},
		{"arrays", ArrayValue(NumberValue(1), StringValue("a")), ArrayValue(NumberValue(1), StringValue("a")), true},
		{"array length", ArrayValue(NumberValue(1)), ArrayValue(), false},
		{
			"objects ignore order",
			ObjectValue(Member{"a", NumberValue(1)}, Member{"b", NumberValue(2)}),
			ObjectValue(Member{"b", NumberValue(2)}, Member{"a", NumberValue(1)}),
			true,
		},
		{
			"objects differ",
			ObjectValue(Member{"a", NumberValue(1)}),
			ObjectValue(Member{"a", StringValue("1")}),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
		})
	}
}

func TestValue_NumberLiteralKept(t *testing.T) {
	v, err := Parse([]byte(`1.50`))
	require.NoError(t, err)
	assert.Equal(t, "1.50", v.String())
	assert.True(t, NumberValue(1.5).Equal(v))
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"name": "NewUser",
		"job":  "qa",
		"age":  30,
		"tags": []any{"a", nil, true},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"age":30,"job":"qa","name":"NewUser","tags":["a",null,true]}`, v.String())

	n, err := FromGo(json.Number("12"))
	require.NoError(t, err)
	assert.True(t, NumberValue(12).Equal(n))

	_, err = FromGo(struct{}{})
	assert.Error(t, err)

	_, err = FromGo([]any{make(chan int)})
	assert.Error(t, err)
}

func TestValue_Interface(t *testing.T) {
	v, err := Parse([]byte(`{"id": 5, "tags": ["x"], "nil": null}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"id":   5.0,
		"tags": []any{"x"},
		"nil":  nil,
	}, v.Interface())
}

func TestValue_MarshalJSON(t *testing.T) {
	v, err := Parse([]byte(`{"color": "#E2583E"}`))
	require.NoError(t, err)

	out, err := json.Marshal(map[string]Value{"actual": v})
	require.NoError(t, err)
	assert.JSONEq(t, `{"actual": {"color": "#E2583E"}}`, string(out))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "null", Null.String())
	assert.Equal(t, "number", Number.String())
	assert.Equal(t, "object", Object.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func mustParse(t *testing.T, doc string) Value {
	t.Helper()
	v, err := Parse([]byte(doc))
	require.NoError(t, err)
	return v
}

func mustFromGo(t *testing.T, in any) Value {
	t.Helper()
	v, err := FromGo(in)
	require.NoError(t, err)
	return v
}
