package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Encoding
	}{
		{"utf8", "utf8", UTF8},
		{"utf-8 upper", "UTF-8", UTF8},
		{"utf16", "utf16", UTF16},
		{"utf-16le", "utf-16le", UTF16},
		{"latin1", "latin1", Latin1},
		{"iso", " ISO-8859-1 ", Latin1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := ParseEncoding(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, enc)
		})
	}

	_, err := ParseEncoding("ebcdic")
	assert.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestEncoding_StringAndUnitSize(t *testing.T) {
	assert.Equal(t, "utf8", UTF8.String())
	assert.Equal(t, "utf16", UTF16.String())
	assert.Equal(t, "latin1", Latin1.String())
	assert.Equal(t, "encoding(9)", Encoding(9).String())

	assert.Equal(t, 1, UTF8.UnitSize())
	assert.Equal(t, 2, UTF16.UnitSize())
	assert.Equal(t, 1, Latin1.UnitSize())
}

func TestCursorID(t *testing.T) {
	id := newCursorID(3, 7)
	assert.Equal(t, uint32(3), id.Index())
	assert.Equal(t, uint32(7), id.Generation())
	assert.True(t, id.Valid())
	assert.Equal(t, "cursor(3@7)", id.String())

	assert.False(t, CursorID(0).Valid())
	assert.False(t, newCursorID(5, 0).Valid())
}
