// Package transport implements the magic-tagged, length-prefixed message
// framing used for all peer-to-peer wire traffic.
package transport

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/TorporOverload/DocChainValidator/internal/errs"
)

// Magic is the fixed 17-byte tag prefixing every frame.
const Magic = "6022h@1nV@116@t0r"

// MaxFrameSize bounds PAYLOAD length to guard against unbounded allocation
// from a hostile or corrupt peer.
const MaxFrameSize = 10 * 1024 * 1024

const lenFieldSize = 4

// Message is the envelope carried by every frame: a type tag and an
// untyped payload object specific to that type.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Send serializes msg and writes the full frame in one call. A short write
// surfaced by the underlying writer is reported as errs.ErrTransport.
func Send(w io.Writer, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errs.Wrap(err, "marshal message payload")
	}
	if len(payload) > MaxFrameSize {
		return errs.ErrFrameTooLarge
	}

	frame := make([]byte, 0, len(Magic)+lenFieldSize+len(payload))
	frame = append(frame, Magic...)
	lenBuf := make([]byte, lenFieldSize)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(payload)))
	frame = append(frame, lenBuf...)
	frame = append(frame, payload...)

	if _, err := w.Write(frame); err != nil {
		return errs.Wrap(errs.ErrTransport, err.Error())
	}
	return nil
}

// Receive reads exactly one frame: MAGIC, then the 4-byte length, then
// PAYLOAD bytes, using "read exactly N" semantics throughout (short reads
// loop until satisfied, EOF, or error).
//
// It returns errs.ErrProtocol when the magic tag does not match,
// errs.ErrFrameTooLarge when the declared length exceeds MaxFrameSize,
// errs.ErrConnectionClosed when EOF occurs mid-frame, and
// errs.ErrMalformedPayload when PAYLOAD is not valid UTF-8 JSON matching
// Message's shape.
func Receive(r io.Reader) (Message, error) {
	magicBuf := make([]byte, len(Magic))
	if err := readExactly(r, magicBuf); err != nil {
		return Message{}, err
	}
	if string(magicBuf) != Magic {
		return Message{}, errs.ErrProtocol
	}

	lenBuf := make([]byte, lenFieldSize)
	if err := readExactly(r, lenBuf); err != nil {
		return Message{}, err
	}
	payloadLen := binary.BigEndian.Uint32(lenBuf)
	if payloadLen > MaxFrameSize {
		return Message{}, errs.ErrFrameTooLarge
	}

	payload := make([]byte, payloadLen)
	if err := readExactly(r, payload); err != nil {
		return Message{}, err
	}

	if !utf8.Valid(payload) {
		return Message{}, errs.ErrMalformedPayload
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, errs.ErrMalformedPayload
	}
	return msg, nil
}

// readExactly fills buf completely, looping across short reads, and
// classifies the failure the way the framing contract requires: an EOF (or
// ErrUnexpectedEOF) observed partway through a frame is reported as
// errs.ErrConnectionClosed rather than a bare io.EOF, since a frame read is
// never allowed to return a partial result.
func readExactly(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.ErrConnectionClosed
	}
	// Preserve the underlying error (a *net.OpError on a timeout, for
	// instance) so callers can classify it with errors.As; only EOF cases
	// above collapse to the connection-closed sentinel.
	return fmt.Errorf("transport: %w", err)
}

// DecodePayload unmarshals msg.Payload into v.
func DecodePayload(msg Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return errs.Wrap(errs.ErrMalformedPayload, err.Error())
	}
	return nil
}

// NewMessage builds a Message with payload marshaled from v.
func NewMessage(msgType string, v any) (Message, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Message{}, errs.Wrap(err, "marshal message payload")
	}
	return Message{Type: msgType, Payload: raw}, nil
}
