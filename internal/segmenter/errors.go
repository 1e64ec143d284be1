package segmenter

import "errors"

var (
	// Decoding errors
	ErrOddUTF16Length = errors.New("utf-16 data must have an even number of bytes")
)
