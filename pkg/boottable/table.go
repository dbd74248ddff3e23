// Package boottable implements the fixed flash layout holding the
// program entries, bootloader copies and safe mode copies.
package boottable

import (
	"context"
	"fmt"

	"github.com/robotalks/obc.go/pkg/advisory"
	"github.com/robotalks/obc.go/pkg/memory"
)

// DeviceMismatchError is returned by Initialize when the flash is not
// the device the layout was made for.
type DeviceMismatchError struct {
	DeviceID   uint32
	BootConfig uint32
}

func (e *DeviceMismatchError) Error() string {
	return fmt.Sprintf("unexpected flash device id=0x%08x boot-config=0x%08x, want id=0x%08x boot-config=0x%08x",
		e.DeviceID, e.BootConfig, ExpectedDeviceID, ExpectedBootConfig)
}

// BootTable is the boot table region of the program flash.
//
// The embedded lock protects the whole region. Scrubbers only use
// TryLock, mutators use LockContext.
type BootTable struct {
	advisory.Lock

	flash memory.Flash
}

// New creates a BootTable on flash.
func New(flash memory.Flash) *BootTable {
	return &BootTable{flash: flash}
}

// Flash returns the underlying device.
func (t *BootTable) Flash() memory.Flash {
	return t.flash
}

// Initialize checks the flash identity. On mismatch it never lets the
// caller proceed: it waits until ctx is done and returns
// *DeviceMismatchError.
func (t *BootTable) Initialize(ctx context.Context) error {
	id, cfg := t.flash.DeviceID(), t.flash.BootConfig()
	if id == ExpectedDeviceID && cfg == ExpectedBootConfig {
		return nil
	}
	<-ctx.Done()
	return &DeviceMismatchError{DeviceID: id, BootConfig: cfg}
}

// Entry returns the program entry with the 1-based index.
func (t *BootTable) Entry(index int) ProgramEntry {
	if index < 1 || index > EntriesCount {
		panic(fmt.Sprintf("boottable: invalid entry index %d", index))
	}
	base := uint32(EntriesBase + (index-1)*EntrySize)
	return ProgramEntry{span: memory.NewFlashSpan(t.flash, base, EntrySize), index: index}
}

// BootloaderCopy returns the bootloader copy with the 0-based index.
func (t *BootTable) BootloaderCopy(index int) Copy {
	if index < 0 || index >= BootloaderCopiesCount {
		panic(fmt.Sprintf("boottable: invalid bootloader copy %d", index))
	}
	base := uint32(BootloaderCopiesBase + index*BootloaderCopySize)
	return Copy{span: memory.NewFlashSpan(t.flash, base, BootloaderCopySize), index: index}
}

// SafeModeCopy returns the safe mode copy with the 0-based index.
func (t *BootTable) SafeModeCopy(index int) Copy {
	if index < 0 || index >= SafeModeCopiesCount {
		panic(fmt.Sprintf("boottable: invalid safe mode copy %d", index))
	}
	base := uint32(SafeModeCopiesBase + index*SafeModeCopySize)
	return Copy{span: memory.NewFlashSpan(t.flash, base, SafeModeCopySize), index: index}
}

// BootIndex is the entry index selected by the bootloader.
func (t *BootTable) BootIndex() byte {
	return t.byteAt(BootIndexOffset)
}

// SetBootIndex rewrites the boot index.
func (t *BootTable) SetBootIndex(index byte) error {
	return t.setByte(BootIndexOffset, index)
}

// BootCounter is the number of boots since the counter was reset.
func (t *BootTable) BootCounter() byte {
	return t.byteAt(BootCounterOffset)
}

// SetBootCounter rewrites the boot counter.
func (t *BootTable) SetBootCounter(counter byte) error {
	return t.setByte(BootCounterOffset, counter)
}

func (t *BootTable) byteAt(offset uint32) byte {
	var b [1]byte
	t.flash.Read(offset, b[:])
	return b[0]
}

func (t *BootTable) setByte(offset uint32, b byte) error {
	if err := t.flash.EraseSector(offset); err != nil {
		return err
	}
	return t.flash.ProgramByte(offset, b)
}

// SlotsFromMask decodes a boot slot mask into 0-based slot numbers, at
// most three of them, lowest first.
func SlotsFromMask(mask byte) []int {
	var slots []int
	for slot := 0; slot < EntriesCount && len(slots) < 3; slot++ {
		if mask&(1<<uint(slot)) != 0 {
			slots = append(slots, slot)
		}
	}
	return slots
}
