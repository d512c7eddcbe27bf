package decoder

import (
	"fmt"
	"io"
	"time"

	"github.com/tphakala/flac"
)

// flacDecoder handles the "flac" codec. The codec header blob is the FLAC
// stream marker plus STREAMINFO; each wire chunk carries whole FLAC frames.
// The frame decoder consumes a continuous stream, so chunks are fed through
// a pipe to a decode goroutine and decoded frames come back on a channel.
type flacDecoder struct {
	format  Format
	pw      *io.PipeWriter
	frames  chan []byte
	errs    chan error
	closing chan struct{}
	done    chan struct{}
}

// frameWait bounds how long Decode waits for the first frame of a chunk.
// Chunks contain whole frames, so the decoder produces output promptly once
// the chunk bytes are in the pipe.
const frameWait = 200 * time.Millisecond

func newFLACDecoder(header []byte) (*flacDecoder, error) {
	pr, pw := io.Pipe()

	d := &flacDecoder{
		pw:      pw,
		frames:  make(chan []byte, 64),
		errs:    make(chan error, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	// the stream decoder blocks reading STREAMINFO until the header bytes
	// arrive, so it must run before the header write below
	ready := make(chan error, 1)
	go d.decodeLoop(pr, ready)

	if _, err := pw.Write(header); err != nil {
		pw.Close()
		return nil, fmt.Errorf("failed to feed flac header: %w", err)
	}

	select {
	case err := <-ready:
		if err != nil {
			pw.Close()
			return nil, fmt.Errorf("failed to open flac stream: %w", err)
		}
	case <-time.After(time.Second):
		pw.Close()
		return nil, fmt.Errorf("timeout parsing flac header")
	}

	return d, nil
}

func (d *flacDecoder) decodeLoop(pr *io.PipeReader, ready chan<- error) {
	defer close(d.done)
	defer pr.Close()

	dec, err := flac.NewDecoder(pr)
	if err != nil {
		ready <- err
		return
	}

	d.format = Format{
		SampleRate: dec.SampleRate,
		Channels:   dec.NChannels,
		BitDepth:   dec.BitsPerSample,
	}
	ready <- nil

	for {
		frame, err := dec.Next()
		if err == io.EOF || err == io.ErrClosedPipe {
			close(d.frames)
			return
		}
		if err != nil {
			select {
			case d.errs <- err:
			default:
			}
			close(d.frames)
			return
		}
		if !d.emit(frame) {
			close(d.frames)
			return
		}
	}
}

// emit hands a decoded frame to the consumer. It reports false once Close has
// begun, so a full frame queue never wedges teardown.
func (d *flacDecoder) emit(frame []byte) bool {
	select {
	case d.frames <- frame:
		return true
	case <-d.closing:
		return false
	}
}

func (d *flacDecoder) Format() Format {
	return d.format
}

func (d *flacDecoder) Decode(chunk []byte) ([]byte, error) {
	if _, err := d.pw.Write(chunk); err != nil {
		return nil, fmt.Errorf("failed to feed flac chunk: %w", err)
	}

	select {
	case err := <-d.errs:
		return nil, fmt.Errorf("flac decode error: %w", err)
	default:
	}

	// wait for the first frame, then drain whatever else the chunk produced
	var out []byte
	select {
	case frame, ok := <-d.frames:
		if !ok {
			return nil, fmt.Errorf("flac stream ended")
		}
		out = append(out, frame...)
	case <-time.After(frameWait):
		return nil, nil
	}

	for {
		select {
		case frame, ok := <-d.frames:
			if !ok {
				return out, nil
			}
			out = append(out, frame...)
		default:
			return out, nil
		}
	}
}

func (d *flacDecoder) Close() error {
	close(d.closing)
	d.pw.Close()
	<-d.done
	return nil
}
