package segmenter

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/okra-platform/breakiter/internal/engine"
	"golang.org/x/text/encoding/charmap"
)

// buffer holds the source text transcoded to UTF-8 for segmentation, plus
// the mapping back to source code unit offsets.
type buffer struct {
	owner *Engine
	enc   engine.Encoding
	text  string

	// offsets[i] is the source code unit offset of the rune that starts at
	// UTF-8 byte i of text; offsets[len(text)] is the source length.
	offsets []int32
	units   int
}

func (b *buffer) Encoding() engine.Encoding { return b.enc }
func (b *buffer) Len() int                  { return b.units }

// Text returns the UTF-8 transcoding of the buffer
func (b *buffer) Text() string { return b.text }

type transcoder struct {
	sb      strings.Builder
	offsets []int32
}

func newTranscoder(size int) *transcoder {
	t := &transcoder{offsets: make([]int32, 0, size+1)}
	t.sb.Grow(size)
	return t
}

func (t *transcoder) add(r rune, sourceOffset int) {
	n, _ := t.sb.WriteRune(r)
	for range n {
		t.offsets = append(t.offsets, int32(sourceOffset))
	}
}

func (t *transcoder) finish(owner *Engine, enc engine.Encoding, units int) *buffer {
	t.offsets = append(t.offsets, int32(units))
	return &buffer{
		owner:   owner,
		enc:     enc,
		text:    t.sb.String(),
		offsets: t.offsets,
		units:   units,
	}
}

func decode(owner *Engine, enc engine.Encoding, data []byte) (*buffer, error) {
	switch enc {
	case engine.UTF8:
		return decodeUTF8(owner, data), nil
	case engine.UTF16:
		return decodeUTF16(owner, data)
	case engine.Latin1:
		return decodeLatin1(owner, data), nil
	default:
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownEncoding, enc)
	}
}

func decodeUTF8(owner *Engine, data []byte) *buffer {
	t := newTranscoder(len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		t.add(r, i)
		i += size
	}
	return t.finish(owner, engine.UTF8, len(data))
}

func decodeUTF16(owner *Engine, data []byte) (*buffer, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddUTF16Length, len(data))
	}

	units := len(data) / 2
	t := newTranscoder(units)
	for i := 0; i < units; {
		u := rune(binary.LittleEndian.Uint16(data[2*i:]))
		if utf16.IsSurrogate(u) && i+1 < units {
			r := utf16.DecodeRune(u, rune(binary.LittleEndian.Uint16(data[2*i+2:])))
			if r != utf8.RuneError {
				t.add(r, i)
				i += 2
				continue
			}
		}
		if utf16.IsSurrogate(u) {
			u = utf8.RuneError
		}
		t.add(u, i)
		i++
	}
	return t.finish(owner, engine.UTF16, units), nil
}

func decodeLatin1(owner *Engine, data []byte) *buffer {
	t := newTranscoder(len(data))
	for i, b := range data {
		t.add(charmap.ISO8859_1.DecodeByte(b), i)
	}
	return t.finish(owner, engine.Latin1, len(data))
}
