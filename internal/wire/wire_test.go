package wire

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []Request{
		NewGet([]byte("k")),
		NewSet([]byte("k"), []byte("v")),
		NewRemove([]byte("k")),
	}

	for _, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteRequest(&buf, want))

		got, err := ReadRequest(bufio.NewReader(&buf))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestRequestFramingUsesSingleTerminator(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, NewSet([]byte("a"), []byte("1"))))
	require.NoError(t, WriteRequest(&buf, NewGet([]byte("b"))))

	r := bufio.NewReader(&buf)

	first, err := ReadRequest(r)
	require.NoError(t, err)
	require.Equal(t, OpSet, first.Op)

	second, err := ReadRequest(r)
	require.NoError(t, err)
	require.Equal(t, OpGet, second.Op)
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, Success([]byte("value"))))

	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	require.True(t, got.Ok)
	require.Equal(t, []byte("value"), got.Value)

	buf.Reset()
	require.NoError(t, WriteResponse(&buf, ErrorResponse("Key not found")))

	got, err = ReadResponse(&buf)
	require.NoError(t, err)
	require.False(t, got.Ok)
	require.Equal(t, "Key not found", got.Err)
}
