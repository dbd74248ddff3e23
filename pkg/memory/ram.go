package memory

import (
	"sync"
)

// RAMFlash simulates a NOR flash in memory.
type RAMFlash struct {
	geometry   Geometry
	deviceID   uint32
	bootConfig uint32

	data []byte
	lock sync.RWMutex
}

// NewRAMFlash creates an erased RAMFlash.
func NewRAMFlash(geometry Geometry, deviceID, bootConfig uint32) *RAMFlash {
	f := &RAMFlash{
		geometry:   geometry,
		deviceID:   deviceID,
		bootConfig: bootConfig,
		data:       make([]byte, geometry.Size()),
	}
	fill(f.data, ErasedByte)
	return f
}

// Bytes exposes the raw content, for loading images and injecting faults.
func (f *RAMFlash) Bytes() []byte {
	return f.data
}

// FlipBit inverts a single bit, like a single event upset does.
func (f *RAMFlash) FlipBit(offset uint32, bit uint) error {
	if offset >= uint32(len(f.data)) {
		return ErrOutOfRange
	}
	f.lock.Lock()
	f.data[offset] ^= 1 << (bit & 7)
	f.lock.Unlock()
	return nil
}

// Size implements Flash.
func (f *RAMFlash) Size() uint32 {
	return uint32(len(f.data))
}

// Read implements Flash.
func (f *RAMFlash) Read(offset uint32, p []byte) {
	f.lock.RLock()
	if offset < uint32(len(f.data)) {
		copy(p, f.data[offset:])
	}
	f.lock.RUnlock()
}

// Program implements Flash.
func (f *RAMFlash) Program(offset uint32, p []byte) error {
	if !f.inRange(offset, len(p)) {
		return ErrOutOfRange
	}
	f.lock.Lock()
	for i, b := range p {
		f.data[offset+uint32(i)] &= b
	}
	f.lock.Unlock()
	return nil
}

// ProgramByte implements Flash.
func (f *RAMFlash) ProgramByte(offset uint32, b byte) error {
	return f.Program(offset, []byte{b})
}

// EraseSector implements Flash.
func (f *RAMFlash) EraseSector(offset uint32) error {
	start, size := f.geometry.SectorAt(offset)
	if size == 0 {
		return ErrOutOfRange
	}
	if start != offset {
		return ErrNotAligned
	}
	f.lock.Lock()
	fill(f.data[start:start+size], ErasedByte)
	f.lock.Unlock()
	return nil
}

// SectorAt implements Flash.
func (f *RAMFlash) SectorAt(offset uint32) (uint32, uint32) {
	return f.geometry.SectorAt(offset)
}

// DeviceID implements Flash.
func (f *RAMFlash) DeviceID() uint32 {
	return f.deviceID
}

// BootConfig implements Flash.
func (f *RAMFlash) BootConfig() uint32 {
	return f.bootConfig
}

func (f *RAMFlash) inRange(offset uint32, n int) bool {
	return uint64(offset)+uint64(n) <= uint64(len(f.data))
}

// RAMFRAM simulates a FRAM chip in memory.
type RAMFRAM struct {
	Status byte

	data []byte
	lock sync.RWMutex
}

// NewRAMFRAM creates a zero filled RAMFRAM.
func NewRAMFRAM(size uint32) *RAMFRAM {
	return &RAMFRAM{data: make([]byte, size)}
}

// Bytes exposes the raw content.
func (f *RAMFRAM) Bytes() []byte {
	return f.data
}

// ReadStatus implements FRAM.
func (f *RAMFRAM) ReadStatus() (byte, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.Status, nil
}

// Read implements FRAM.
func (f *RAMFRAM) Read(address uint32, p []byte) error {
	if uint64(address)+uint64(len(p)) > uint64(len(f.data)) {
		return ErrOutOfRange
	}
	f.lock.RLock()
	copy(p, f.data[address:])
	f.lock.RUnlock()
	return nil
}

// Write implements FRAM.
func (f *RAMFRAM) Write(address uint32, p []byte) error {
	if uint64(address)+uint64(len(p)) > uint64(len(f.data)) {
		return ErrOutOfRange
	}
	f.lock.Lock()
	copy(f.data[address:], p)
	f.lock.Unlock()
	return nil
}

func fill(p []byte, b byte) {
	for i := range p {
		p[i] = b
	}
}
