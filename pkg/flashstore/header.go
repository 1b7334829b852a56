package flashstore

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"pinscope/pkg/config"
)

// Flash capture file layout: a fixed 24-byte header followed by raw or
// compressed sample records.
const (
	Magic      = 0x50494E53 // "PINS"
	Version    = 1
	HeaderSize = 24
)

var (
	// ErrBadMagic indicates the file does not start with a capture header.
	ErrBadMagic = errors.New("flashstore: bad magic")
	// ErrBadVersion indicates an unsupported header version.
	ErrBadVersion = errors.New("flashstore: unsupported version")
	// ErrChecksum indicates the header checksum did not match. Checksums
	// are always validated on load.
	ErrChecksum = errors.New("flashstore: header checksum mismatch")
)

// Header is the metadata block written at the start of every capture file.
// It is written once when a session opens (with SampleCount zero) and
// rewritten in place with the final count and checksum on flush and stop;
// the record body stays append-only.
type Header struct {
	SampleCount  uint32
	Capacity     uint32
	SampleRateHz uint32
	Compression  config.CompressionType
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], Magic)
	binary.LittleEndian.PutUint16(buf[4:], Version)
	buf[6] = byte(h.Compression)
	buf[7] = 0
	binary.LittleEndian.PutUint32(buf[8:], h.SampleCount)
	binary.LittleEndian.PutUint32(buf[12:], h.Capacity)
	binary.LittleEndian.PutUint32(buf[16:], h.SampleRateHz)
	binary.LittleEndian.PutUint32(buf[20:], crc32.ChecksumIEEE(buf[:20]))
	return buf
}

// ReadHeader reads and validates a capture header. Magic, version and
// checksum are all checked; a mismatch in any of them fails the load.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}

	if binary.LittleEndian.Uint32(buf[0:]) != Magic {
		return Header{}, ErrBadMagic
	}
	if binary.LittleEndian.Uint16(buf[4:]) != Version {
		return Header{}, ErrBadVersion
	}
	if binary.LittleEndian.Uint32(buf[20:]) != crc32.ChecksumIEEE(buf[:20]) {
		return Header{}, ErrChecksum
	}

	return Header{
		SampleCount:  binary.LittleEndian.Uint32(buf[8:]),
		Capacity:     binary.LittleEndian.Uint32(buf[12:]),
		SampleRateHz: binary.LittleEndian.Uint32(buf[16:]),
		Compression:  config.CompressionType(buf[6]),
	}, nil
}
