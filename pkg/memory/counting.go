package memory

import "sync/atomic"

// FlashStats counts wearing operations.
type FlashStats struct {
	Programs uint64
	Erases   uint64
}

// CountingFlash counts program and erase operations of a Flash.
type CountingFlash struct {
	Flash
	programs atomic.Uint64
	erases   atomic.Uint64
}

// NewCountingFlash wraps flash.
func NewCountingFlash(flash Flash) *CountingFlash {
	return &CountingFlash{Flash: flash}
}

// Stats returns the counters.
func (f *CountingFlash) Stats() FlashStats {
	return FlashStats{Programs: f.programs.Load(), Erases: f.erases.Load()}
}

// Program implements Flash.
func (f *CountingFlash) Program(offset uint32, p []byte) error {
	f.programs.Add(1)
	return f.Flash.Program(offset, p)
}

// ProgramByte implements Flash.
func (f *CountingFlash) ProgramByte(offset uint32, b byte) error {
	f.programs.Add(1)
	return f.Flash.ProgramByte(offset, b)
}

// EraseSector implements Flash.
func (f *CountingFlash) EraseSector(offset uint32) error {
	f.erases.Add(1)
	return f.Flash.EraseSector(offset)
}
