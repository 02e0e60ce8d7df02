package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	c, err := ByName("jsonl")
	require.NoError(t, err)
	require.NoError(t, c.Encode(&buf, map[string]int{"a": 1}))
	require.NoError(t, c.Encode(&buf, map[string]int{"b": 2}))
	require.Equal(t, "{\"a\":1}\n{\"b\":2}\n", buf.String())
}

func TestPrettyJSON(t *testing.T) {
	var buf bytes.Buffer
	c, err := ByName("json")
	require.NoError(t, err)
	require.NoError(t, c.Encode(&buf, map[string]int{"a": 1}))
	require.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestByName_Unknown(t *testing.T) {
	_, err := ByName("xml")
	require.Error(t, err)
}
