package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/snapforge/snapforged/internal/decoder"
	"github.com/snapforge/snapforged/internal/stream"
)

// Device plays PCM through the default playback device via miniaudio.
// The data callback runs on the backend's real-time thread; everything it
// touches goes through the Cell and the frame ring, never a lock.
type Device struct {
	cell *Cell

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	dev     *malgo.Device
	ring    *frameRing
	src     *stream.TimedBuffer
	format  decoder.Format
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewDevice initializes the audio backend context
func NewDevice() (*Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return &Device{
		cell: NewCell(),
		ctx:  ctx,
	}, nil
}

// Start opens a playback device for the given format and begins draining
// src. Decoded audio is expected as interleaved 16-bit little-endian PCM.
func (d *Device) Start(format decoder.Format, src *stream.TimedBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("output already running")
	}

	ring := newFrameRing(ringCapacity)
	rdr := &renderer{
		cell:          d.cell,
		ring:          ring,
		bytesPerFrame: format.Channels * 2,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			rdr.render(pOutput)
		},
	}

	dev, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("failed to init playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	d.dev = dev
	d.ring = ring
	d.src = src
	d.format = format
	d.stopCh = make(chan struct{})
	d.running = true

	d.wg.Add(1)
	go d.feed(ring, src, format, d.stopCh)

	return nil
}

// feed moves audio that is due for playback from the timed buffer into the
// callback ring. It runs on an ordinary goroutine; the real-time callback
// never touches the timed buffer's mutex.
func (d *Device) feed(ring *frameRing, src *stream.TimedBuffer, format decoder.Format, stopCh chan struct{}) {
	defer d.wg.Done()

	chunkBytes := format.SampleRate * format.Channels * 2 * int(feedInterval/time.Millisecond) / 1000
	// two feed intervals of headroom per block
	buf := make([]byte, chunkBytes*2)

	ticker := time.NewTicker(feedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			n, gen := src.ReadDue(buf, now)
			if n == 0 {
				continue
			}
			pcm := make([]byte, n)
			copy(pcm, buf[:n])
			ring.push(&block{generation: gen, pcm: pcm})
		}
	}
}

// Stop tears down the playback device
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false

	close(d.stopCh)
	d.wg.Wait()

	if d.dev != nil {
		d.dev.Uninit()
		d.dev = nil
	}
	d.ring = nil
	d.src = nil
	return nil
}

// Close releases the audio backend context. Stop first.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
}

// Pause toggles silent output; audio is still consumed at rate
func (d *Device) Pause(paused bool) {
	d.cell.SetPaused(paused)
}

// Paused reports the pause flag
func (d *Device) Paused() bool {
	return d.cell.Paused()
}

// BumpGeneration invalidates all buffered audio and returns the new tag
func (d *Device) BumpGeneration() uint64 {
	return d.cell.BumpGeneration()
}

// Generation returns the current generation tag
func (d *Device) Generation() uint64 {
	return d.cell.Generation()
}

// SetVolume sets the playback volume (0-100, clamped)
func (d *Device) SetVolume(percent int) {
	d.cell.SetVolume(percent)
}

// SetMuted sets the mute flag
func (d *Device) SetMuted(muted bool) {
	d.cell.SetMuted(muted)
}
