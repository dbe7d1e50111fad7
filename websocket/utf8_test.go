package websocket

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringCollectorWholeMessage(t *testing.T) {
	var sc stringCollector
	require.NoError(t, sc.extend([]byte("hello, 世界")))
	s, err := sc.finish()
	require.NoError(t, err)
	assert.Equal(t, "hello, 世界", s)
}

func TestStringCollectorSplitMidRune(t *testing.T) {
	full := "h世"
	b := []byte(full)
	// split in the middle of the 3-byte rune '世'
	r, size := utf8.DecodeRuneInString(full[1:])
	require.NotEqual(t, utf8.RuneError, r)
	require.Equal(t, 3, size)

	var sc stringCollector
	require.NoError(t, sc.extend(b[:2]))
	require.NoError(t, sc.extend(b[2:]))
	s, err := sc.finish()
	require.NoError(t, err)
	assert.Equal(t, full, s)
}

func TestStringCollectorInvalidBytes(t *testing.T) {
	var sc stringCollector
	err := sc.extend([]byte{0xFF, 0xFE})
	assert.ErrorIs(t, err, ErrUTF8)
}

func TestStringCollectorTruncatedAtEnd(t *testing.T) {
	full := []byte("h世")
	var sc stringCollector
	require.NoError(t, sc.extend(full[:2])) // only the first byte of the 3-byte rune
	_, err := sc.finish()
	assert.ErrorIs(t, err, ErrUTF8)
}

func TestValidateUTF8(t *testing.T) {
	assert.True(t, ValidateUTF8([]byte("hello")))
	assert.False(t, ValidateUTF8([]byte{0xFF, 0xFE}))
}

func FuzzStringCollectorMatchesWholeValidation(f *testing.F) {
	f.Add("hello", 1)
	f.Add("世界", 2)
	f.Add("", 1)

	f.Fuzz(func(t *testing.T, s string, splitAt int) {
		b := []byte(s)
		if len(b) == 0 {
			splitAt = 0
		} else {
			splitAt = ((splitAt % len(b)) + len(b)) % len(b)
		}

		var sc stringCollector
		if err := sc.extend(b[:splitAt]); err != nil {
			return
		}
		if err := sc.extend(b[splitAt:]); err != nil {
			return
		}
		result, err := sc.finish()
		wantValid := utf8.Valid(b)
		if wantValid && err != nil {
			t.Errorf("valid utf8 %q rejected at split %d", b, splitAt)
		}
		if err == nil && result != string(b) {
			t.Errorf("collector produced %q, want %q", result, b)
		}
	})
}
