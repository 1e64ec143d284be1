package wordbreak

import (
	"context"
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/okra-platform/breakiter/internal/handle"
	"github.com/rs/zerolog"
)

// Encoding markers. Each one yields its own iterator type.
type (
	UTF8   struct{}
	UTF16  struct{}
	Latin1 struct{}
)

type (
	UTF8Iterator   = handle.Iterator[UTF8]
	UTF16Iterator  = handle.Iterator[UTF16]
	Latin1Iterator = handle.Iterator[Latin1]
)

// Segmenter creates word break iterators backed by an engine
type Segmenter struct {
	engine engine.Engine
	logger zerolog.Logger
}

// NewSegmenter creates a segmenter over e. The engine must outlive every
// iterator the segmenter hands out.
func NewSegmenter(e engine.Engine, logger zerolog.Logger) *Segmenter {
	return &Segmenter{
		engine: e,
		logger: logger.With().Str("component", "wordbreak").Logger(),
	}
}

// Engine returns the underlying engine
func (s *Segmenter) Engine() engine.Engine {
	return s.engine
}

// UTF8 starts iterating the word boundaries of UTF-8 text
func (s *Segmenter) UTF8(ctx context.Context, text []byte) (*UTF8Iterator, error) {
	return start[UTF8](ctx, s, engine.UTF8, text)
}

// UTF16 starts iterating the word boundaries of UTF-16 text
func (s *Segmenter) UTF16(ctx context.Context, text []uint16) (*UTF16Iterator, error) {
	data := make([]byte, 2*len(text))
	for i, u := range text {
		binary.LittleEndian.PutUint16(data[2*i:], u)
	}
	return start[UTF16](ctx, s, engine.UTF16, data)
}

// Latin1 starts iterating the word boundaries of ISO-8859-1 text
func (s *Segmenter) Latin1(ctx context.Context, text []byte) (*Latin1Iterator, error) {
	return start[Latin1](ctx, s, engine.Latin1, text)
}

func start[E any](ctx context.Context, s *Segmenter, enc engine.Encoding, data []byte) (*handle.Iterator[E], error) {
	buf, err := s.engine.NewBuffer(ctx, enc, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s buffer: %w", enc, err)
	}

	id, err := s.engine.CreateCursor(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create cursor: %w", err)
	}

	s.logger.Debug().
		Stringer("cursor", id).
		Stringer("encoding", enc).
		Int("units", buf.Len()).
		Msg("word break iterator created")

	// The cursor reads buf, so buf is an edge of the iterator
	return handle.New[E](s.engine, id, true, buf), nil
}

// Segment returns every word boundary of data decoded as enc
func (s *Segmenter) Segment(ctx context.Context, enc engine.Encoding, data []byte) ([]int32, error) {
	switch enc {
	case engine.UTF8:
		return collectAndRelease(ctx, s, enc, data, start[UTF8])
	case engine.UTF16:
		return collectAndRelease(ctx, s, enc, data, start[UTF16])
	case engine.Latin1:
		return collectAndRelease(ctx, s, enc, data, start[Latin1])
	default:
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownEncoding, enc)
	}
}

func collectAndRelease[E any](
	ctx context.Context,
	s *Segmenter,
	enc engine.Encoding,
	data []byte,
	begin func(context.Context, *Segmenter, engine.Encoding, []byte) (*handle.Iterator[E], error),
) ([]int32, error) {
	it, err := begin(ctx, s, enc, data)
	if err != nil {
		return nil, err
	}

	boundaries, err := Collect(ctx, it)
	if releaseErr := it.Release(ctx); releaseErr != nil && err == nil {
		err = releaseErr
	}
	return boundaries, err
}

// Words splits UTF-8 text into its word break segments
func (s *Segmenter) Words(ctx context.Context, text string) ([]string, error) {
	boundaries, err := s.Segment(ctx, engine.UTF8, []byte(text))
	if err != nil {
		return nil, err
	}
	return Split(text, boundaries), nil
}

// Split cuts text at the given UTF-8 byte boundaries
func Split(text string, boundaries []int32) []string {
	if len(boundaries) < 2 {
		return nil
	}

	words := make([]string, 0, len(boundaries)-1)
	for i := 1; i < len(boundaries); i++ {
		words = append(words, text[boundaries[i-1]:boundaries[i]])
	}
	return words
}

// Collect advances it until End and returns every boundary seen. The
// iterator is left unreleased.
func Collect[E any](ctx context.Context, it *handle.Iterator[E]) ([]int32, error) {
	var boundaries []int32
	for v, err := range All(ctx, it) {
		if err != nil {
			return boundaries, err
		}
		boundaries = append(boundaries, v)
	}
	return boundaries, nil
}

// All returns a sequence over the remaining boundaries of it. The sequence
// stops after End or after yielding the first error.
func All[E any](ctx context.Context, it *handle.Iterator[E]) iter.Seq2[int32, error] {
	return func(yield func(int32, error) bool) {
		for {
			v, err := it.Next(ctx)
			if err != nil {
				yield(0, err)
				return
			}
			if v == engine.End {
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}
