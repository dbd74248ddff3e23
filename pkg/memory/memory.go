package memory

import "errors"

var (
	// ErrOutOfRange indicates an access beyond the end of the device.
	ErrOutOfRange = errors.New("address out of range")
	// ErrNotAligned indicates an erase that does not start on a sector boundary.
	ErrNotAligned = errors.New("address not sector aligned")
	// ErrLocked indicates the backing image is held by another process.
	ErrLocked = errors.New("image locked by another process")
)

// FRAM is a byte-addressable non-volatile store which needs no erase.
type FRAM interface {
	// ReadStatus reads the device status register.
	ReadStatus() (byte, error)
	// Read fills p starting at address.
	Read(address uint32, p []byte) error
	// Write stores p starting at address.
	Write(address uint32, p []byte) error
}

// Flash is a memory-mapped NOR flash device.
//
// Reads never fail. Programming can only clear bits (1 -> 0), the
// only way back to 1 is erasing the whole sector, which sets every
// byte of it to 0xFF.
type Flash interface {
	// Size is the total device size in bytes.
	Size() uint32
	// Read copies device content at offset into p.
	Read(offset uint32, p []byte)
	// Program programs p at offset.
	Program(offset uint32, p []byte) error
	// ProgramByte programs a single byte at offset.
	ProgramByte(offset uint32, b byte) error
	// EraseSector erases the sector starting at offset.
	EraseSector(offset uint32) error
	// SectorAt returns the sector containing offset.
	SectorAt(offset uint32) (start, size uint32)
	// DeviceID reads the device identification register.
	DeviceID() uint32
	// BootConfig reads the boot sector configuration register.
	BootConfig() uint32
}

// UpsetDetector is implemented by a Flash whose read path corrects
// content, so callers can tell when the device itself needs rewriting.
type UpsetDetector interface {
	Upsets(offset, n uint32) bool
}

// ErasedByte is the value of every byte in an erased flash sector.
const ErasedByte = 0xFF

// Region is a run of equally sized sectors.
type Region struct {
	Count      int
	SectorSize uint32
}

// Geometry describes the sector layout of a flash device, from offset 0.
type Geometry []Region

// Predefined geometries.
var (
	// BottomBoot8M is an 8 MB NOR flash with eight 8 KB boot sectors
	// followed by 64 KB uniform sectors.
	BottomBoot8M = Geometry{
		{Count: 8, SectorSize: 8 * 1024},
		{Count: 127, SectorSize: 64 * 1024},
	}
	// MCUFlash1M is a 1 MB MCU internal flash with 4 KB pages.
	MCUFlash1M = Geometry{
		{Count: 256, SectorSize: 4 * 1024},
	}
)

// Size calculates the total size covered by the geometry.
func (g Geometry) Size() uint32 {
	var size uint32
	for _, r := range g {
		size += uint32(r.Count) * r.SectorSize
	}
	return size
}

// SectorAt finds the sector containing offset. size is 0 if offset is
// outside of the device.
func (g Geometry) SectorAt(offset uint32) (start, size uint32) {
	for _, r := range g {
		end := start + uint32(r.Count)*r.SectorSize
		if offset < end {
			return start + (offset-start)/r.SectorSize*r.SectorSize, r.SectorSize
		}
		start = end
	}
	return start, 0
}
