package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Message types on the Snapcast stream port
const (
	TypeBase           uint16 = 0
	TypeCodecHeader    uint16 = 1
	TypeWireChunk      uint16 = 2
	TypeServerSettings uint16 = 3
	TypeTime           uint16 = 4
	TypeHello          uint16 = 5
)

// BaseHeaderSize is the fixed frame header length in bytes
const BaseHeaderSize = 26

// MaxPayloadSize bounds a single frame payload. Anything larger is a
// corrupt or hostile stream, not audio.
const MaxPayloadSize = 16 * 1024 * 1024

// Tv is the protocol's timeval: seconds + microseconds, little-endian i32 each
type Tv struct {
	Sec  int32
	Usec int32
}

// TvFromDuration converts a duration to wire timeval form
func TvFromDuration(d time.Duration) Tv {
	us := d.Microseconds()
	return Tv{
		Sec:  int32(us / 1e6),
		Usec: int32(us % 1e6),
	}
}

// TvNow returns the current monotonic-ish wall clock as a wire timeval
func TvNow() Tv {
	now := time.Now()
	return Tv{
		Sec:  int32(now.Unix()),
		Usec: int32(now.Nanosecond() / 1000),
	}
}

// Duration converts a wire timeval back to a duration
func (t Tv) Duration() time.Duration {
	return time.Duration(t.Sec)*time.Second + time.Duration(t.Usec)*time.Microsecond
}

// BaseHeader is the frame header every message carries (26 bytes, little-endian)
type BaseHeader struct {
	Type     uint16
	ID       uint16
	RefersTo uint16
	Sent     Tv
	Received Tv
	Size     uint32
}

// Encode serializes BaseHeader to wire format
func (h *BaseHeader) Encode() []byte {
	buf := make([]byte, BaseHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.Type)
	binary.LittleEndian.PutUint16(buf[2:4], h.ID)
	binary.LittleEndian.PutUint16(buf[4:6], h.RefersTo)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(h.Sent.Sec))
	binary.LittleEndian.PutUint32(buf[10:14], uint32(h.Sent.Usec))
	binary.LittleEndian.PutUint32(buf[14:18], uint32(h.Received.Sec))
	binary.LittleEndian.PutUint32(buf[18:22], uint32(h.Received.Usec))
	binary.LittleEndian.PutUint32(buf[22:26], h.Size)
	return buf
}

// DecodeBaseHeader reads a BaseHeader from bytes
func DecodeBaseHeader(data []byte) (*BaseHeader, error) {
	if len(data) < BaseHeaderSize {
		return nil, fmt.Errorf("insufficient data for base header: %d bytes", len(data))
	}
	return &BaseHeader{
		Type:     binary.LittleEndian.Uint16(data[0:2]),
		ID:       binary.LittleEndian.Uint16(data[2:4]),
		RefersTo: binary.LittleEndian.Uint16(data[4:6]),
		Sent: Tv{
			Sec:  int32(binary.LittleEndian.Uint32(data[6:10])),
			Usec: int32(binary.LittleEndian.Uint32(data[10:14])),
		},
		Received: Tv{
			Sec:  int32(binary.LittleEndian.Uint32(data[14:18])),
			Usec: int32(binary.LittleEndian.Uint32(data[18:22])),
		},
		Size: binary.LittleEndian.Uint32(data[22:26]),
	}, nil
}

// Message is a decoded frame: header plus raw payload
type Message struct {
	Header  BaseHeader
	Payload []byte
}

// WriteMessage frames and writes one message
func WriteMessage(w io.Writer, msgType, id, refersTo uint16, payload []byte) error {
	header := &BaseHeader{
		Type:     msgType,
		ID:       id,
		RefersTo: refersTo,
		Sent:     TvNow(),
		Size:     uint32(len(payload)),
	}

	if _, err := w.Write(header.Encode()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("failed to write payload: %w", err)
		}
	}
	return nil
}

// ReadMessage reads one framed message from the reader
func ReadMessage(r *bufio.Reader) (*Message, error) {
	headerBuf := make([]byte, BaseHeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, fmt.Errorf("failed to read base header: %w", err)
	}

	header, err := DecodeBaseHeader(headerBuf)
	if err != nil {
		return nil, err
	}

	if header.Size > MaxPayloadSize {
		return nil, fmt.Errorf("payload size %d exceeds limit", header.Size)
	}

	payload := make([]byte, header.Size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	return &Message{Header: *header, Payload: payload}, nil
}

// writeString appends a u32-length-prefixed string to buf
func writeString(buf *bytes.Buffer, s []byte) {
	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], uint32(len(s)))
	buf.Write(sz[:])
	buf.Write(s)
}

// readString consumes a u32-length-prefixed string from data,
// returning the string and the remaining bytes
func readString(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("insufficient data for string length")
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	if uint32(len(data)-4) < n {
		return nil, nil, fmt.Errorf("string length %d exceeds payload", n)
	}
	return data[4 : 4+n], data[4+n:], nil
}

// Hello is the client's opening handshake message
type Hello struct {
	MAC             string `json:"MAC"`
	HostName        string `json:"HostName"`
	Version         string `json:"Version"`
	ClientName      string `json:"ClientName"`
	OS              string `json:"OS"`
	Arch            string `json:"Arch"`
	Instance        int    `json:"Instance"`
	ID              string `json:"ID"`
	ProtocolVersion int    `json:"SnapStreamProtocolVersion"`
}

// Encode serializes Hello to wire format (length-prefixed JSON)
func (h *Hello) Encode() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal hello: %w", err)
	}
	var buf bytes.Buffer
	writeString(&buf, data)
	return buf.Bytes(), nil
}

// ServerSettings carries the server's per-client playback settings
type ServerSettings struct {
	BufferMs int  `json:"bufferMs"`
	Latency  int  `json:"latency"`
	Volume   int  `json:"volume"`
	Muted    bool `json:"muted"`
}

// ParseServerSettings decodes a ServerSettings payload
func ParseServerSettings(payload []byte) (*ServerSettings, error) {
	data, _, err := readString(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed server settings: %w", err)
	}
	var s ServerSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse server settings: %w", err)
	}
	return &s, nil
}

// CodecHeader announces the stream codec and its opaque setup blob
type CodecHeader struct {
	Codec  string
	Header []byte
}

// ParseCodecHeader decodes a CodecHeader payload
func ParseCodecHeader(payload []byte) (*CodecHeader, error) {
	codec, rest, err := readString(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed codec header: %w", err)
	}
	header, _, err := readString(rest)
	if err != nil {
		return nil, fmt.Errorf("malformed codec header blob: %w", err)
	}
	return &CodecHeader{Codec: string(codec), Header: header}, nil
}

// WireChunk is one timestamped slab of encoded audio
type WireChunk struct {
	Timestamp Tv
	Payload   []byte
}

// ParseWireChunk decodes a WireChunk payload
func ParseWireChunk(payload []byte) (*WireChunk, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("insufficient data for wire chunk timestamp")
	}
	ts := Tv{
		Sec:  int32(binary.LittleEndian.Uint32(payload[0:4])),
		Usec: int32(binary.LittleEndian.Uint32(payload[4:8])),
	}
	data, _, err := readString(payload[8:])
	if err != nil {
		return nil, fmt.Errorf("malformed wire chunk: %w", err)
	}
	return &WireChunk{Timestamp: ts, Payload: data}, nil
}

// EncodeTime builds a Time message payload (one timeval)
func EncodeTime(latency Tv) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(latency.Sec))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(latency.Usec))
	return buf
}

// ParseTime decodes a Time message payload
func ParseTime(payload []byte) (Tv, error) {
	if len(payload) < 8 {
		return Tv{}, fmt.Errorf("insufficient data for time message")
	}
	return Tv{
		Sec:  int32(binary.LittleEndian.Uint32(payload[0:4])),
		Usec: int32(binary.LittleEndian.Uint32(payload[4:8])),
	}, nil
}
