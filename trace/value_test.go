package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueCoercion(t *testing.T) {
	assert.Equal(t, KindString, valueOf("s").Kind())
	assert.Equal(t, KindInt64, valueOf(7).Kind())
	assert.Equal(t, KindInt64, valueOf(int64(7)).Kind())
	assert.Equal(t, KindFloat64, valueOf(1.5).Kind())
	assert.Equal(t, KindBool, valueOf(true).Kind())
	assert.Equal(t, KindStringSlice, valueOf([]string{"a"}).Kind())
	assert.Equal(t, KindInvalid, valueOf(nil).Kind())

	// Unsupported types fall back to their string rendering.
	v := valueOf(struct{ X int }{X: 1})
	assert.Equal(t, KindString, v.Kind())
	assert.NotEmpty(t, v.Str())
}

func TestValueText(t *testing.T) {
	assert.Equal(t, "s", StringValue("s").Text())
	assert.Equal(t, "42", Int64Value(42).Text())
	assert.Equal(t, "1.5", Float64Value(1.5).Text())
	assert.Equal(t, "true", BoolValue(true).Text())
	assert.Equal(t, "a,b", StringSliceValue([]string{"a", "b"}).Text())
	assert.Equal(t, "", Value{}.Text())
}

func TestValueSliceCopies(t *testing.T) {
	in := []string{"a", "b"}
	v := StringSliceValue(in)
	in[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, v.StringSlice())

	out := v.StringSlice()
	out[1] = "mutated"
	assert.Equal(t, []string{"a", "b"}, v.StringSlice())
}
