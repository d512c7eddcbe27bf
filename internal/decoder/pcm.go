package decoder

import (
	"bytes"
	"fmt"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// pcmDecoder handles the "pcm" codec, whose header blob is a RIFF/WAV
// header describing the raw stream; chunks are passthrough PCM.
type pcmDecoder struct {
	format Format
}

func newPCMDecoder(header []byte) (*pcmDecoder, error) {
	d := wav.NewDecoder(bytes.NewReader(header))
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse wav header: %w", err)
	}

	var f *audio.Format = d.Format()
	if f == nil || f.SampleRate == 0 || f.NumChannels == 0 || d.BitDepth == 0 {
		return nil, fmt.Errorf("invalid wav header: rate=%d channels=%d depth=%d",
			d.SampleRate, d.NumChans, d.BitDepth)
	}

	return &pcmDecoder{
		format: Format{
			SampleRate: f.SampleRate,
			Channels:   f.NumChannels,
			BitDepth:   int(d.BitDepth),
		},
	}, nil
}

func (d *pcmDecoder) Format() Format {
	return d.format
}

func (d *pcmDecoder) Decode(chunk []byte) ([]byte, error) {
	if len(chunk)%d.format.BytesPerFrame() != 0 {
		return nil, fmt.Errorf("chunk size %d not aligned to frame size %d",
			len(chunk), d.format.BytesPerFrame())
	}
	return chunk, nil
}

func (d *pcmDecoder) Close() error {
	return nil
}
