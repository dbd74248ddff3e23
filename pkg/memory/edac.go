package memory

import (
	"sync"

	"github.com/robotalks/obc.go/pkg/ecc"
)

// EDACStats counts the outcome of checked blocks.
type EDACStats struct {
	Corrected    uint64
	NotCorrected uint64
	Corrupted    uint64
}

// EDACFlash protects reads of a Flash with the code the memory
// controller generates for every ecc.BlockSize bytes it writes.
// Single bit upsets are corrected on the read path only, the device
// keeps the flipped bit until it is rewritten.
type EDACFlash struct {
	Flash

	codes []uint32
	stats EDACStats
	lock  sync.Mutex
}

// NewEDACFlash generates codes for the current content of flash.
func NewEDACFlash(flash Flash) *EDACFlash {
	f := &EDACFlash{
		Flash: flash,
		codes: make([]uint32, flash.Size()/ecc.BlockSize),
	}
	f.generate(0, flash.Size())
	return f
}

// Stats returns the counters.
func (f *EDACFlash) Stats() EDACStats {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.stats
}

// Read implements Flash.
func (f *EDACFlash) Read(offset uint32, p []byte) {
	var block [ecc.BlockSize]byte
	f.lock.Lock()
	defer f.lock.Unlock()
	for done := 0; done < len(p); {
		at := offset + uint32(done)
		start := at / ecc.BlockSize * ecc.BlockSize
		if int(start/ecc.BlockSize) >= len(f.codes) {
			f.Flash.Read(at, p[done:])
			return
		}
		f.Flash.Read(start, block[:])
		switch ecc.CorrectBlock(f.codes[start/ecc.BlockSize], block[:]) {
		case ecc.Corrected:
			f.stats.Corrected++
		case ecc.NotCorrected:
			f.stats.NotCorrected++
		case ecc.Corrupted:
			f.stats.Corrupted++
		}
		done += copy(p[done:], block[at-start:])
	}
}

// Upsets reports whether any block overlapping [offset, offset+n)
// differs from its code on the device. Counters are not updated.
func (f *EDACFlash) Upsets(offset, n uint32) bool {
	var block [ecc.BlockSize]byte
	f.lock.Lock()
	defer f.lock.Unlock()
	for start := offset / ecc.BlockSize * ecc.BlockSize; start < offset+n; start += ecc.BlockSize {
		if int(start/ecc.BlockSize) >= len(f.codes) {
			break
		}
		f.Flash.Read(start, block[:])
		if ecc.CorrectBlock(f.codes[start/ecc.BlockSize], block[:]) != ecc.NoError {
			return true
		}
	}
	return false
}

// Program implements Flash.
func (f *EDACFlash) Program(offset uint32, p []byte) error {
	err := f.Flash.Program(offset, p)
	f.generate(offset, uint32(len(p)))
	return err
}

// ProgramByte implements Flash.
func (f *EDACFlash) ProgramByte(offset uint32, b byte) error {
	err := f.Flash.ProgramByte(offset, b)
	f.generate(offset, 1)
	return err
}

// EraseSector implements Flash.
func (f *EDACFlash) EraseSector(offset uint32) error {
	err := f.Flash.EraseSector(offset)
	_, size := f.Flash.SectorAt(offset)
	f.generate(offset, size)
	return err
}

// generate refreshes the codes of every block overlapping [offset, offset+n).
func (f *EDACFlash) generate(offset, n uint32) {
	var block [ecc.BlockSize]byte
	f.lock.Lock()
	defer f.lock.Unlock()
	for start := offset / ecc.BlockSize * ecc.BlockSize; start < offset+n; start += ecc.BlockSize {
		if int(start/ecc.BlockSize) >= len(f.codes) {
			break
		}
		f.Flash.Read(start, block[:])
		f.codes[start/ecc.BlockSize] = ecc.Calc(block[:])
	}
}
