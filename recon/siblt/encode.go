package siblt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Serialized layout, all integers big-endian:
//
//	magic    [4]byte "SIBT"
//	version  uint8
//	family   uint8   cell index hash family
//	hashes   uint8
//	keySize  uint8
//	sumSize  uint8
//	cells    uint32
//	cells * (count int32, key [keySize]byte, checksum [sumSize]byte)
const (
	headerSize = 13

	// Version of the serialized layout.
	Version = 1
	// FamilyMurmur3 is murmur3 x86 32-bit seeded with the hash function index.
	FamilyMurmur3 = 1

	// MaxCells bounds deserialized tables.
	MaxCells = 1 << 22
)

var magic = [4]byte{'S', 'I', 'B', 'T'}

var (
	ErrBadMagic               = errors.New("siblt: bad magic")
	ErrUnsupportedVersion     = errors.New("siblt: unsupported version")
	ErrUnsupportedHashFamily  = errors.New("siblt: unsupported hash family")
	ErrBadHeader              = errors.New("siblt: bad header")
	ErrUnexpectedEncodingSize = errors.New("siblt: unexpected encoding size")
)

func (s *Sketch) cellSize() int {
	return 4 + s.keySize + s.checksumSize
}

// EncodedSize returns the length of MarshalBinary output.
func (s *Sketch) EncodedSize() int {
	return headerSize + len(s.cells)*s.cellSize()
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Sketch) MarshalBinary() ([]byte, error) {
	buf := make([]byte, s.EncodedSize())
	copy(buf, magic[:])
	buf[4] = Version
	buf[5] = FamilyMurmur3
	buf[6] = byte(s.numHashes)
	buf[7] = byte(s.keySize)
	buf[8] = byte(s.checksumSize)
	binary.BigEndian.PutUint32(buf[9:headerSize], uint32(len(s.cells)))
	off := headerSize
	for i := range s.cells {
		c := &s.cells[i]
		binary.BigEndian.PutUint32(buf[off:], uint32(c.count))
		off += 4
		off += copy(buf[off:], c.key)
		off += copy(buf[off:], c.checksum)
	}
	return buf, nil
}

// Unmarshal parses a serialized sketch.
func Unmarshal(data []byte) (*Sketch, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrUnexpectedEncodingSize, len(data))
	}
	if [4]byte(data[:4]) != magic {
		return nil, ErrBadMagic
	}
	if data[4] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[4])
	}
	if data[5] != FamilyMurmur3 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedHashFamily, data[5])
	}
	numHashes := int(data[6])
	keySize := int(data[7])
	checksumSize := int(data[8])
	numCells := binary.BigEndian.Uint32(data[9:headerSize])
	switch {
	case numHashes == 0,
		keySize == 0 || keySize > MaxKeySize,
		checksumSize == 0 || checksumSize > 32,
		numCells == 0 || numCells > MaxCells:
		return nil, fmt.Errorf("%w: hashes=%d key=%d checksum=%d cells=%d",
			ErrBadHeader, numHashes, keySize, checksumSize, numCells)
	}
	want := headerSize + int(numCells)*(4+keySize+checksumSize)
	if len(data) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedEncodingSize, len(data), want)
	}
	s := New(int(numCells), keySize, checksumSize, numHashes)
	off := headerSize
	for i := range s.cells {
		c := &s.cells[i]
		c.count = int32(binary.BigEndian.Uint32(data[off:]))
		off += 4
		off += copy(c.key, data[off:off+keySize])
		off += copy(c.checksum, data[off:off+checksumSize])
	}
	return s, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Sketch) UnmarshalBinary(data []byte) error {
	decoded, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}
