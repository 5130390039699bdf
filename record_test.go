package tyrant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrantdb/tyrant/protocol"
)

func TestDecodeColumns(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"one column", "name\x00John", map[string]string{"name": "John"}},
		{
			"two columns",
			"name\x00John\x00age\x0042",
			map[string]string{"name": "John", "age": "42"},
		},
		{
			"trailing name without a value",
			"name\x00John\x00flag",
			map[string]string{"name": "John", "flag": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeColumns(tt.in))
		})
	}
}

func TestEncodeColumns(t *testing.T) {
	encoded, err := EncodeColumns(map[string]string{"name": "John", "age": "42"})
	require.NoError(t, err)
	// Sorted by column name for a deterministic encoding.
	assert.Equal(t, "age\x0042\x00name\x00John", encoded)

	decoded := DecodeColumns(encoded)
	assert.Equal(t, map[string]string{"name": "John", "age": "42"}, decoded)
}

func TestEncodeColumnsRejectsNUL(t *testing.T) {
	_, err := EncodeColumns(map[string]string{"name": "Jo\x00hn"})
	var argErr *protocol.ArgumentError
	require.ErrorAs(t, err, &argErr)

	_, err = EncodeColumns(map[string]string{"na\x00me": "John"})
	require.ErrorAs(t, err, &argErr)
}

func TestParseValue(t *testing.T) {
	rec := parseValue("k", "plain value")
	assert.False(t, rec.IsTable())
	assert.Equal(t, "plain value", rec.Value)
	assert.Equal(t, "k", rec.Key)

	rec = parseValue("k", "name\x00John")
	assert.True(t, rec.IsTable())
	assert.Equal(t, "John", rec.Column("name"))
	assert.Equal(t, "", rec.Column("absent"))
}

func TestJoinSplitValues(t *testing.T) {
	joined, err := JoinValues([]string{"a", "b", "c"}, ",")
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", joined)
	assert.Equal(t, []string{"a", "b", "c"}, SplitValues(joined, ","))

	assert.Nil(t, SplitValues("", ","))
}

func TestJoinValuesErrors(t *testing.T) {
	var argErr *protocol.ArgumentError

	_, err := JoinValues([]string{"a"}, "")
	require.ErrorAs(t, err, &argErr)

	_, err = JoinValues([]string{"a"}, "\x00")
	require.ErrorAs(t, err, &argErr)

	_, err = JoinValues([]string{"a,b"}, ",")
	require.ErrorAs(t, err, &argErr)
}

func TestBoolColumns(t *testing.T) {
	assert.Equal(t, "1", EncodeBool(true))
	assert.Equal(t, "", EncodeBool(false))
	assert.True(t, DecodeBool("1"))
	assert.True(t, DecodeBool("anything"))
	assert.False(t, DecodeBool(""))
}
