// ABOUTME: Binary framing for the control channel and the UDP hello datagram
// ABOUTME: Fixes little-endian byte order explicitly per the portable re-implementation note
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HelloSize is the fixed length of a UDP hello datagram: a bare SessionId.
const HelloSize = 4

// ReadCommand reads a bare 4-byte command tag, as used for GetFormat
// requests, StartPlay requests, and Heartbeat in either direction.
func ReadCommand(r io.Reader) (Command, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return CommandNone, fmt.Errorf("read command: %w", err)
	}
	return Command(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteCommand writes a bare command tag.
func WriteCommand(w io.Writer, cmd Command) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(cmd))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// ReadFormatReply reads the GetFormat reply's size-prefixed payload, having
// already consumed the leading command tag. It does not validate the tag.
func ReadFormatReply(r io.Reader) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, fmt.Errorf("read format size: %w", err)
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read format payload: %w", err)
	}
	return payload, nil
}

// WriteFormatReply writes cmd:GetFormat | size:u32 | payload.
func WriteFormatReply(w io.Writer, payload []byte) error {
	if err := WriteCommand(w, CommandGetFormat); err != nil {
		return err
	}
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("write format size: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write format payload: %w", err)
	}
	return nil
}

// ReadSessionID reads the StartPlay reply's trailing id:u32, having already
// consumed the leading command tag.
func ReadSessionID(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read session id: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteStartPlayReply writes cmd:StartPlay | id:u32.
func WriteStartPlayReply(w io.Writer, id uint32) error {
	if err := WriteCommand(w, CommandStartPlay); err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], id)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write session id: %w", err)
	}
	return nil
}

// EncodeHello encodes a UDP hello datagram: a bare SessionId.
func EncodeHello(id uint32) []byte {
	buf := make([]byte, HelloSize)
	binary.LittleEndian.PutUint32(buf, id)
	return buf
}

// DecodeHello decodes a UDP hello datagram. It rejects datagrams that are
// not exactly HelloSize bytes, since the spec defines no other shape.
func DecodeHello(datagram []byte) (uint32, error) {
	if len(datagram) != HelloSize {
		return 0, fmt.Errorf("hello: want %d bytes, got %d", HelloSize, len(datagram))
	}
	return binary.LittleEndian.Uint32(datagram), nil
}
