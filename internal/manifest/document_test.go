package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PreservesKeyOrder(t *testing.T) {
	doc, err := Parse([]byte(`{"name":"app","version":"1.0.0","scripts":{"build":"tsc","test":"jest"}}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "version", "scripts"}, doc.Keys())

	scripts, ok := doc.Get("scripts")
	require.True(t, ok)
	require.Equal(t, KindObject, scripts.Kind)
	assert.Equal(t, []string{"build", "test"}, scripts.Obj.Keys())
}

func TestParse_AllValueKinds(t *testing.T) {
	doc, err := Parse([]byte(`{
		"s": "str",
		"n": 1.50,
		"i": 42,
		"b": true,
		"z": null,
		"a": ["x", 2, false, {"k": "v"}],
		"o": {"nested": "yes"}
	}`))
	require.NoError(t, err)

	s, _ := doc.Get("s")
	assert.Equal(t, KindString, s.Kind)
	assert.Equal(t, "str", s.Str)

	n, _ := doc.Get("n")
	assert.Equal(t, KindNumber, n.Kind)
	assert.Equal(t, "1.50", n.Num.String()) // literal preserved

	b, _ := doc.Get("b")
	assert.Equal(t, KindBool, b.Kind)
	assert.True(t, b.Bool)

	z, _ := doc.Get("z")
	assert.Equal(t, KindNull, z.Kind)

	a, _ := doc.Get("a")
	require.Equal(t, KindArray, a.Kind)
	require.Len(t, a.Arr, 4)
	assert.Equal(t, KindObject, a.Arr[3].Kind)
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		`{"a": }`,
		`[1,2,3]`,
		`"just a string"`,
		`{"a":1} trailing`,
		`{`,
		``,
	}
	for _, c := range cases {
		_, err := Parse([]byte(c))
		assert.Error(t, err, "input %q", c)
	}
}

func TestEncode_RoundTripKeepsOrderAndLiterals(t *testing.T) {
	src := []byte(`{
  "name": "app",
  "version": "1.0.0",
  "private": true,
  "workers": 4,
  "keywords": [
    "template",
    "sync"
  ],
  "scripts": {
    "build": "tsc",
    "test": "jest"
  },
  "files": []
}
`)
	doc, err := Parse(src)
	require.NoError(t, err)

	out, err := doc.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(src), string(out))

	// a second round trip is byte-stable
	doc2, err := Parse(out)
	require.NoError(t, err)
	out2, err := doc2.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(out), string(out2))
}

func TestDocument_SetDeleteOrder(t *testing.T) {
	doc := NewDocument()
	doc.Set("a", String("1"))
	doc.Set("b", String("2"))
	doc.Set("c", String("3"))
	doc.Set("b", String("changed")) // replace keeps position

	assert.Equal(t, []string{"a", "b", "c"}, doc.Keys())

	assert.True(t, doc.Delete("b"))
	assert.False(t, doc.Delete("b"))
	assert.Equal(t, []string{"a", "c"}, doc.Keys())
}

func TestDocument_EqualIgnoresOrder(t *testing.T) {
	d1, err := Parse([]byte(`{"a":"1","b":{"x":1,"y":2}}`))
	require.NoError(t, err)
	d2, err := Parse([]byte(`{"b":{"y":2,"x":1},"a":"1"}`))
	require.NoError(t, err)

	assert.True(t, d1.Equal(d2))

	d3, err := Parse([]byte(`{"a":"1","b":{"x":1,"y":3}}`))
	require.NoError(t, err)
	assert.False(t, d1.Equal(d3))
}

func TestDocument_CloneIsDeep(t *testing.T) {
	doc, err := Parse([]byte(`{"deps":{"a":"1"}}`))
	require.NoError(t, err)

	clone := doc.Clone()
	deps, _ := clone.Get("deps")
	deps.Obj.Set("a", String("2"))

	orig, _ := doc.Get("deps")
	a, _ := orig.Obj.Get("a")
	assert.Equal(t, "1", a.Str)
}
