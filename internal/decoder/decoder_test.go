package decoder

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wavHeader builds a minimal RIFF header for the given stream parameters.
func wavHeader(sampleRate, channels, bitDepth int) []byte {
	var buf bytes.Buffer
	blockAlign := channels * bitDepth / 8
	byteRate := sampleRate * blockAlign

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitDepth))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	return buf.Bytes()
}

func TestNewPCMDecoder(t *testing.T) {
	t.Parallel()

	d, err := New("pcm", wavHeader(48000, 2, 16))
	require.NoError(t, err)
	defer d.Close()

	f := d.Format()
	assert.Equal(t, 48000, f.SampleRate)
	assert.Equal(t, 2, f.Channels)
	assert.Equal(t, 16, f.BitDepth)
	assert.Equal(t, 4, f.BytesPerFrame())
	assert.Equal(t, 192000, f.BytesPerSecond())
}

func TestPCMDecodePassthrough(t *testing.T) {
	t.Parallel()

	d, err := New("pcm", wavHeader(44100, 2, 16))
	require.NoError(t, err)
	defer d.Close()

	chunk := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := d.Decode(chunk)
	require.NoError(t, err)
	assert.Equal(t, chunk, out)
}

func TestPCMDecodeRejectsMisaligned(t *testing.T) {
	t.Parallel()

	d, err := New("pcm", wavHeader(44100, 2, 16))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNewPCMDecoderBadHeader(t *testing.T) {
	t.Parallel()

	_, err := New("pcm", []byte("not a riff header"))
	assert.Error(t, err)
}

func TestNewUnknownCodec(t *testing.T) {
	t.Parallel()

	_, err := New("opus", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opus")
}

func TestToS16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bitDepth int
		in       []byte
		want     []byte
		wantErr  bool
	}{
		{
			name:     "16-bit passthrough",
			bitDepth: 16,
			in:       []byte{0x34, 0x12},
			want:     []byte{0x34, 0x12},
		},
		{
			name:     "24-bit keeps high bytes",
			bitDepth: 24,
			in:       []byte{0xFF, 0x34, 0x12, 0x00, 0x78, 0x56},
			want:     []byte{0x34, 0x12, 0x78, 0x56},
		},
		{
			name:     "32-bit keeps high bytes",
			bitDepth: 32,
			in:       []byte{0xAA, 0xBB, 0x34, 0x12},
			want:     []byte{0x34, 0x12},
		},
		{
			name:     "24-bit misaligned",
			bitDepth: 24,
			in:       []byte{1, 2, 3, 4},
			wantErr:  true,
		},
		{
			name:     "32-bit misaligned",
			bitDepth: 32,
			in:       []byte{1, 2, 3},
			wantErr:  true,
		},
		{
			name:     "unsupported depth",
			bitDepth: 8,
			in:       []byte{1},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ToS16(tt.in, tt.bitDepth)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFLACCloseUnblocksBackloggedFrames(t *testing.T) {
	t.Parallel()

	_, pw := io.Pipe()
	d := &flacDecoder{
		pw:      pw,
		frames:  make(chan []byte, 2),
		errs:    make(chan error, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	// Emit frames faster than anyone consumes them, the way a lagging Decode
	// caller would back the queue up.
	go func() {
		defer close(d.done)
		for d.emit([]byte{0, 0}) {
		}
		close(d.frames)
	}()

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a full frame queue")
	}
}
