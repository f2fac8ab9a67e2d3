package timestamp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBinary_Layout(t *testing.T) {
	ts := New(0x0102_0304_0506, 0x1234, true)

	data, err := ts.MarshalBinary()
	require.NoError(t, err)
	// 0x1234<<1 | 1 = 0x2469
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x24, 0x69}, data)
}

func TestMarshalBinary_RoundTrip(t *testing.T) {
	for _, ts := range sampleTimestamps() {
		data, err := ts.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, Size)

		var got Timestamp
		require.NoError(t, got.UnmarshalBinary(data))
		assert.Equal(t, ts, got)
	}
}

func TestMarshalBinary_PreservesOrderOfSeconds(t *testing.T) {
	a, _ := New(1, MaxTicks, true).MarshalBinary()
	b, _ := New(2, 0, false).MarshalBinary()
	assert.Less(t, string(a), string(b))
}

func TestAppendBinary(t *testing.T) {
	out, err := New(1, 1, false).AppendBinary([]byte{0xff})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0, 0, 0, 0, 0, 1, 0, 2}, out)
}

func TestUnmarshalBinary_InvalidLength(t *testing.T) {
	var ts Timestamp
	err := ts.UnmarshalBinary([]byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrInvalidLength))
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Timestamp
		wantErr bool
	}{
		{input: "10", want: New(10, 0, false)},
		{input: "10.3", want: New(10, 3, false)},
		{input: "10.3a", want: New(10, 3, true)},
		{input: " 0.0a ", want: New(0, 0, true)},
		{input: "", wantErr: true},
		{input: "x.1", wantErr: true},
		{input: "1.32768", wantErr: true},
		{input: "1.-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Timestamp {
	t.Helper()
	ts, err := Parse(s)
	require.NoError(t, err)
	return ts
}
