package boottable

import (
	"bytes"
	"encoding/binary"

	"github.com/sigurn/crc16"

	"github.com/robotalks/obc.go/pkg/memory"
)

var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

// CRC computes the checksum stored in program entries.
func CRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// ProgramEntry is a view of a single program slot.
type ProgramEntry struct {
	span  memory.FlashSpan
	index int
}

// Index is the 1-based entry index.
func (e ProgramEntry) Index() int {
	return e.index
}

// Span covers the whole entry, header included.
func (e ProgramEntry) Span() memory.FlashSpan {
	return e.span
}

// Erase erases every sector of the entry, making it invalid.
func (e ProgramEntry) Erase() error {
	return e.span.Erase()
}

// Length is the program size in bytes.
func (e ProgramEntry) Length() uint32 {
	var b [4]byte
	e.span.Read(entryLengthOffset, b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// SetLength programs the length field.
func (e ProgramEntry) SetLength(length uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], length)
	return e.span.Program(entryLengthOffset, b[:])
}

// CRC is the stored checksum of the program.
func (e ProgramEntry) CRC() uint16 {
	var b [2]byte
	e.span.Read(entryCRCOffset, b[:])
	return binary.LittleEndian.Uint16(b[:])
}

// SetCRC programs the checksum field.
func (e ProgramEntry) SetCRC(crc uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], crc)
	return e.span.Program(entryCRCOffset, b[:])
}

// IsValid reports whether the entry has been marked as completely programmed.
func (e ProgramEntry) IsValid() bool {
	return e.span.ByteAt(entryValidOffset) == ValidMarker
}

// MarkAsValid programs the validity marker.
func (e ProgramEntry) MarkAsValid() error {
	return e.span.ProgramByte(entryValidOffset, ValidMarker)
}

// Description reads the NUL terminated description.
func (e ProgramEntry) Description() string {
	var b [DescriptionSize]byte
	e.span.Read(entryDescriptionOffset, b[:])
	if n := bytes.IndexByte(b[:], 0); n >= 0 {
		return string(b[:n])
	}
	return string(b[:DescriptionSize-1])
}

// SetDescription programs the description, truncated to fit.
func (e ProgramEntry) SetDescription(desc string) error {
	if len(desc) > DescriptionSize-1 {
		desc = desc[:DescriptionSize-1]
	}
	b := make([]byte, len(desc)+1)
	copy(b, desc)
	return e.span.Program(entryDescriptionOffset, b)
}

// ReadContent reads program content at offset.
func (e ProgramEntry) ReadContent(offset uint32, p []byte) error {
	if uint64(offset)+uint64(len(p)) > ContentSize {
		return memory.ErrOutOfRange
	}
	e.span.Read(entryContentOffset+offset, p)
	return nil
}

// WriteContent programs content at offset.
func (e ProgramEntry) WriteContent(offset uint32, p []byte) error {
	if uint64(offset)+uint64(len(p)) > ContentSize {
		return memory.ErrOutOfRange
	}
	return e.span.Program(entryContentOffset+offset, p)
}

// Verify checks the entry is valid and its content matches the stored CRC.
func (e ProgramEntry) Verify() bool {
	if !e.IsValid() {
		return false
	}
	length := e.Length()
	if length > ContentSize {
		return false
	}
	crc := crc16.Init(crcTable)
	var chunk [4 * KB]byte
	for off := uint32(0); off < length; {
		n := min(uint32(len(chunk)), length-off)
		e.span.Read(entryContentOffset+off, chunk[:n])
		crc = crc16.Update(crc, chunk[:n], crcTable)
		off += n
	}
	return crc16.Complete(crc, crcTable) == e.CRC()
}

// Copy is a view of a single raw bootloader or safe mode copy.
type Copy struct {
	span  memory.FlashSpan
	index int
}

// Index is the 0-based copy index.
func (c Copy) Index() int {
	return c.index
}

// Span covers the copy.
func (c Copy) Span() memory.FlashSpan {
	return c.span
}

// Read reads copy content at offset.
func (c Copy) Read(offset uint32, p []byte) {
	c.span.Read(offset, p)
}

// Program programs copy content at offset.
func (c Copy) Program(offset uint32, p []byte) error {
	return c.span.Program(offset, p)
}

// Erase erases the whole copy.
func (c Copy) Erase() error {
	return c.span.Erase()
}
