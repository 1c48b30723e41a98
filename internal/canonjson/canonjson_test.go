package canonjson

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeysAndUsesCompactSeparators(t *testing.T) {
	v := map[string]interface{}{
		"b": 1,
		"a": map[string]interface{}{"z": 1, "y": 2},
		"c": []interface{}{3, 2, 1},
	}
	out, err := Marshal(v)
	require.NoError(t, err)
	require.Equal(t, `{"a":{"y":2,"z":1},"b":1,"c":[3,2,1]}`, string(out))
}

func TestMarshal_Deterministic(t *testing.T) {
	v := map[string]interface{}{"x": 1, "y": "hello"}
	a, err := Marshal(v)
	require.NoError(t, err)
	b, err := Marshal(v)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestMarshal_EscapesNonASCII(t *testing.T) {
	v := map[string]interface{}{"name": "café"}
	out, err := Marshal(v)
	require.NoError(t, err)
	for _, b := range out {
		require.Less(t, int(b), 0x80)
	}
}

func TestSHA256Hex_StableAcrossKeyOrder(t *testing.T) {
	a := map[string]interface{}{"x": 1, "y": 2}
	b := map[string]interface{}{"y": 2, "x": 1}
	ha, err := SHA256Hex(a)
	require.NoError(t, err)
	hb, err := SHA256Hex(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}
