package scrubbing

import (
	"bytes"
	"fmt"

	"github.com/robotalks/obc.go/pkg/boottable"
	fx "github.com/robotalks/obc.go/pkg/framework"
	"github.com/robotalks/obc.go/pkg/memory"
)

// MCUBootloaderOffset is where the MCU runs the bootloader from.
const MCUBootloaderOffset = 0

// CopiesStatus is the state of a copies scrubber.
type CopiesStatus struct {
	Iterations      uint32
	CopiesCorrected uint32
}

// BootloaderStatus is the state of a BootloaderScrubber.
type BootloaderStatus struct {
	CopiesStatus
	MCUPagesCorrected uint32
}

// copies keeps 5 whole copies identical.
type copies struct {
	buffer []byte
	table  *boottable.BootTable
	spans  []memory.FlashSpan
	status CopiesStatus
}

func newCopies(buffer []byte, table *boottable.BootTable, size uint32, count int, copyAt func(int) boottable.Copy) copies {
	if uint32(len(buffer)) < size {
		panic(fmt.Sprintf("scrubbing: buffer of %d bytes smaller than copy size %d", len(buffer), size))
	}
	c := copies{buffer: buffer[:size], table: table}
	for i := 0; i < count; i++ {
		c.spans = append(c.spans, copyAt(i).Span())
	}
	return c
}

// scrub votes and repairs the copies, leaving the voted content in
// the buffer. It must be called with the boot table locked.
func (c *copies) scrub() error {
	differ, err := voteWindow(c.spans, 0, c.buffer)
	if err != nil {
		return err
	}
	var errs fx.AggregatedError
	for i, span := range c.spans {
		if differ&(1<<uint(i)) == 0 {
			continue
		}
		c.status.CopiesCorrected++
		if err := rewrite(span, 0, c.buffer); err != nil {
			errs.Add(fmt.Errorf("rewrite copy %d: %w", i, err))
		}
	}
	c.status.Iterations++
	return errs.Aggregate()
}

// BootloaderScrubber keeps the bootloader copies identical, and the
// bootloader in MCU flash equal to them.
type BootloaderScrubber struct {
	// RewriteMCU enables repairing the bootloader in MCU flash.
	RewriteMCU bool

	copies
	mcu      memory.Flash
	mcuPages uint32
}

// NewBootloaderScrubber creates a BootloaderScrubber. mcu may be nil,
// then only the copies are scrubbed.
func NewBootloaderScrubber(buffer []byte, table *boottable.BootTable, mcu memory.Flash) *BootloaderScrubber {
	return &BootloaderScrubber{
		RewriteMCU: true,
		copies:     newCopies(buffer, table, boottable.BootloaderCopySize, boottable.BootloaderCopiesCount, table.BootloaderCopy),
		mcu:        mcu,
	}
}

// Status returns the counters.
func (s *BootloaderScrubber) Status() BootloaderStatus {
	return BootloaderStatus{CopiesStatus: s.status, MCUPagesCorrected: s.mcuPages}
}

// Scrub scrubs all copies, then the MCU bootloader. It does nothing
// when the boot table is busy.
func (s *BootloaderScrubber) Scrub() error {
	if !s.table.TryLock() {
		return nil
	}
	defer s.table.Unlock()

	var errs fx.AggregatedError
	errs.Add(s.copies.scrub())
	if s.mcu != nil && s.RewriteMCU {
		errs.Add(s.scrubMCU())
	}
	return errs.Aggregate()
}

func (s *BootloaderScrubber) scrubMCU() error {
	var chunk [chunkSize]byte
	var errs fx.AggregatedError
	for off := uint32(0); off < uint32(len(s.buffer)); {
		start, size := s.mcu.SectorAt(MCUBootloaderOffset + off)
		if size == 0 || start != MCUBootloaderOffset+off || off+size > uint32(len(s.buffer)) {
			return fmt.Errorf("mcu flash page at 0x%x does not fit the bootloader", MCUBootloaderOffset+off)
		}
		page := s.buffer[off : off+size]
		same := true
		for done := uint32(0); done < size && same; done += chunkSize {
			n := min(chunkSize, size-done)
			s.mcu.Read(start+done, chunk[:n])
			same = bytes.Equal(chunk[:n], page[done:done+n])
		}
		if !same {
			s.mcuPages++
			if err := s.mcu.EraseSector(start); err != nil {
				errs.Add(fmt.Errorf("erase mcu page 0x%x: %w", start, err))
			} else if err := s.mcu.Program(start, page); err != nil {
				errs.Add(fmt.Errorf("program mcu page 0x%x: %w", start, err))
			}
		}
		off += size
	}
	return errs.Aggregate()
}

// SafeModeScrubber keeps the safe mode copies identical.
type SafeModeScrubber struct {
	copies
}

// NewSafeModeScrubber creates a SafeModeScrubber.
func NewSafeModeScrubber(buffer []byte, table *boottable.BootTable) *SafeModeScrubber {
	return &SafeModeScrubber{
		copies: newCopies(buffer, table, boottable.SafeModeCopySize, boottable.SafeModeCopiesCount, table.SafeModeCopy),
	}
}

// Status returns the counters.
func (s *SafeModeScrubber) Status() CopiesStatus {
	return s.status
}

// Scrub scrubs all copies. It does nothing when the boot table is busy.
func (s *SafeModeScrubber) Scrub() error {
	if !s.table.TryLock() {
		return nil
	}
	defer s.table.Unlock()
	return s.copies.scrub()
}
