package compress

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeflateRoundTrips(t *testing.T) {
	input := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 1000)

	out, err := Deflate(3, input)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Less(t, len(out), len(input))

	r := flate.NewReader(bytes.NewReader(out))
	defer r.Close()
	var decoded bytes.Buffer
	_, err = decoded.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, input, decoded.Bytes())
}

func TestDeflateLevel1StillDecodes(t *testing.T) {
	input := bytes.Repeat([]byte("abc"), 500)
	out, err := Deflate(1, input)
	require.NoError(t, err)

	r := flate.NewReader(bytes.NewReader(out))
	defer r.Close()
	var decoded bytes.Buffer
	_, err = decoded.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, input, decoded.Bytes())
}

func TestDeflateEmptyInput(t *testing.T) {
	out, err := Deflate(3, nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
}
