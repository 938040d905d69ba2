package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersPage = `{
	"page": 1,
	"total": 12,
	"data": [
		{"id": 1, "email": "george.bluth@reqres.in", "first_name": "George", "last_name": "Bluth"},
		{"id": 2, "first_name": "Janet", "last_name": "Weaver"}
	],
	"support": {"url": "https://reqres.in/#support-heading"}
}`

func TestCompile(t *testing.T) {
	tests := []struct {
		expr     string
		segments []Segment
	}{
		{"token", []Segment{{Key: "token"}}},
		{"data.email", []Segment{{Key: "data"}, {Key: "email"}}},
		{"data.first_name[0]", []Segment{{Key: "data"}, {Key: "first_name", Indexes: []int{0}}}},
		{"[2].id", []Segment{{Indexes: []int{2}}, {Key: "id"}}},
		{"matrix[1][0]", []Segment{{Key: "matrix", Indexes: []int{1, 0}}}},
		{"data[-1]", []Segment{{Key: "data", Indexes: []int{-1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.segments, p.Segments())
			assert.Equal(t, tt.expr, p.String())
		})
	}
}

func TestCompile_Root(t *testing.T) {
	p, err := Compile("")
	require.NoError(t, err)
	assert.True(t, p.IsRoot())
}

func TestCompile_Errors(t *testing.T) {
	for _, expr := range []string{"a..b", "a[", "a[x]", "a]b", "a.[0]", "a[0]b", "."} {
		t.Run(expr, func(t *testing.T) {
			_, err := Compile(expr)
			assert.Error(t, err)
		})
	}
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("a[") })
	assert.NotPanics(t, func() { MustCompile("data.id") })
}

func TestResolve(t *testing.T) {
	doc, err := Parse([]byte(usersPage))
	require.NoError(t, err)

	tests := []struct {
		name     string
		expr     string
		expected Value
	}{
		{"top level number", "total", NumberValue(12)},
		{"nested object", "support.url", StringValue("https://reqres.in/#support-heading")},
		{"projected then indexed", "data.first_name[0]", StringValue("George")},
		{"projected then indexed second", "data.last_name[1]", StringValue("Weaver")},
		{"indexed then key", "data[1].id", NumberValue(2)},
		{"negative index", "data[-1].first_name", StringValue("Janet")},
		{"projection", "data.first_name", ArrayValue(StringValue("George"), StringValue("Janet"))},
		{"projection with missing member", "data.email", ArrayValue(StringValue("george.bluth@reqres.in"), NullValue())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(doc, tt.expr)
			require.True(t, ok)
			assert.True(t, tt.expected.Equal(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestResolve_Unresolved(t *testing.T) {
	doc, err := Parse([]byte(usersPage))
	require.NoError(t, err)

	for _, expr := range []string{
		"missing",
		"support.missing",
		"total.value",
		"data.first_name[5]",
		"data[2]",
		"page[0]",
		"a[",
	} {
		t.Run(expr, func(t *testing.T) {
			_, ok := Resolve(doc, expr)
			assert.False(t, ok)
		})
	}
}

func TestResolve_Root(t *testing.T) {
	doc, err := Parse([]byte(`[1,2]`))
	require.NoError(t, err)

	got, ok := Resolve(doc, "")
	require.True(t, ok)
	assert.Equal(t, Array, got.Kind())

	first, ok := Resolve(doc, "[0]")
	require.True(t, ok)
	assert.True(t, NumberValue(1).Equal(first))
}

func TestResolve_ProjectionOverScalars(t *testing.T) {
	doc, err := Parse([]byte(`{"ids": [1, 2, 3]}`))
	require.NoError(t, err)

	_, ok := Resolve(doc, "ids.value")
	assert.False(t, ok)
}

func TestResolve_EmptyArrayProjection(t *testing.T) {
	doc, err := Parse([]byte(`{"data": []}`))
	require.NoError(t, err)

	got, ok := Resolve(doc, "data.first_name")
	require.True(t, ok)
	assert.Equal(t, 0, got.Len())

	_, ok = Resolve(doc, "data.first_name[0]")
	assert.False(t, ok)
}

func TestResolve_NullLeaf(t *testing.T) {
	doc, err := Parse([]byte(`{"deleted_at": null}`))
	require.NoError(t, err)

	got, ok := Resolve(doc, "deleted_at")
	require.True(t, ok)
	assert.True(t, got.IsNull())
}
