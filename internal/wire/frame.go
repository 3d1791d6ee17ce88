/*
Package wire implements the framing protocol and payload codec used on
every chat connection.

Each frame on the socket is a 4-byte big-endian payload length followed by
exactly that many payload bytes. The payload is a 1-byte type tag followed
by a UTF-8 JSON document carrying one application payload.
*/
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// TagJSON marks a payload whose body is a JSON document. It is currently
// the only defined tag.
const TagJSON byte = 1

// frameHeaderLength is the fixed size of the length prefix.
const frameHeaderLength = 4

// MaxPayloadBytes bounds a single frame's payload. The protocol itself
// defines no limit; the bound keeps a bogus length prefix from forcing an
// arbitrarily large allocation.
const MaxPayloadBytes = 1 << 20

var (
	// ErrFrameTooLarge reports a payload exceeding MaxPayloadBytes, on
	// either the encode or the decode side.
	ErrFrameTooLarge = errors.New("wire: frame payload exceeds maximum size")

	// ErrEmptyPayload reports a frame whose payload has no room for the
	// type tag.
	ErrEmptyPayload = errors.New("wire: empty frame payload")
)

// WriteFrame writes one length-prefixed frame carrying payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and returns its payload
// bytes. A clean EOF before the first header byte surfaces as io.EOF; a
// stream that ends mid-frame surfaces as io.ErrUnexpectedEOF. A length
// prefix above MaxPayloadBytes fails with ErrFrameTooLarge before any
// allocation.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// Envelope is the (type tag, body) pair carried inside a frame's payload.
type Envelope struct {
	Tag  byte
	Body []byte
}

// Encode returns the payload bytes for the envelope: tag byte followed by
// the body.
func (e Envelope) Encode() []byte {
	payload := make([]byte, 0, 1+len(e.Body))
	payload = append(payload, e.Tag)
	return append(payload, e.Body...)
}

// DecodeEnvelope splits a frame payload into its type tag and body.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	if len(payload) == 0 {
		return Envelope{}, ErrEmptyPayload
	}
	return Envelope{Tag: payload[0], Body: payload[1:]}, nil
}
