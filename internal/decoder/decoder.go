package decoder

import "fmt"

// Format describes the decoded PCM stream
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// BytesPerFrame returns the size of one sample frame across all channels
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

// BytesPerSecond returns the decoded data rate
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerFrame()
}

// Decoder turns encoded wire chunks into interleaved little-endian PCM.
// Implementations are driven from the session's reader goroutine only and
// need not be safe for concurrent use.
type Decoder interface {
	Format() Format
	Decode(chunk []byte) ([]byte, error)
	Close() error
}

// New selects a decoder from the codec name announced in the stream's
// codec header and primes it with the header blob.
func New(codec string, header []byte) (Decoder, error) {
	switch codec {
	case "pcm":
		return newPCMDecoder(header)
	case "flac":
		return newFLACDecoder(header)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", codec)
	}
}
