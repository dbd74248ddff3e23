// Package image loads program images and programs them into the boot
// table.
package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/robotalks/obc.go/pkg/boottable"
)

var (
	// ErrTooLarge indicates an image which does not fit the destination.
	ErrTooLarge = errors.New("image too large")
	// ErrEmpty indicates an image without data.
	ErrEmpty = errors.New("image empty")
	// ErrVerify indicates the programmed entry does not verify.
	ErrVerify = errors.New("programmed entry does not verify")
)

// Load reads a binary image, or an Intel HEX one when the file name
// ends with .hex or .ihex.
func Load(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		return LoadHex(f)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}

// LoadHex converts an Intel HEX image into a flat binary starting at
// the lowest address, gaps filled with erased flash.
func LoadHex(r io.Reader) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("parse hex: %w", err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, ErrEmpty
	}
	start, end := segments[0].Address, segments[0].Address
	for _, seg := range segments {
		start = min(start, seg.Address)
		end = max(end, seg.Address+uint32(len(seg.Data)))
	}
	return mem.ToBinary(start, end-start, 0xFF), nil
}

// ProgramEntry programs data into the entry with the 1-based index,
// waiting for the boot table until ctx is done.
func ProgramEntry(ctx context.Context, table *boottable.BootTable, index int, data []byte, description string) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > boottable.ContentSize {
		return fmt.Errorf("%w: %d bytes, entry holds %d", ErrTooLarge, len(data), boottable.ContentSize)
	}
	if err := table.LockContext(ctx); err != nil {
		return err
	}
	defer table.Unlock()

	entry := table.Entry(index)
	steps := []struct {
		name string
		fn   func() error
	}{
		{"erase", entry.Erase},
		{"length", func() error { return entry.SetLength(uint32(len(data))) }},
		{"crc", func() error { return entry.SetCRC(boottable.CRC(data)) }},
		{"description", func() error { return entry.SetDescription(description) }},
		{"content", func() error { return entry.WriteContent(0, data) }},
		{"mark valid", entry.MarkAsValid},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("entry %d %s: %w", index, step.name, err)
		}
	}
	if !entry.Verify() {
		return fmt.Errorf("entry %d: %w", index, ErrVerify)
	}
	return nil
}

// CopyKind selects a set of raw copies.
type CopyKind int

// Copy kinds.
const (
	BootloaderCopies CopyKind = iota
	SafeModeCopies
)

func (k CopyKind) String() string {
	if k == SafeModeCopies {
		return "safe-mode"
	}
	return "bootloader"
}

// ParseCopyKind parses "bootloader" or "safe-mode".
func ParseCopyKind(name string) (CopyKind, error) {
	switch strings.ToLower(name) {
	case "bootloader", "boot":
		return BootloaderCopies, nil
	case "safe-mode", "safemode", "safe":
		return SafeModeCopies, nil
	}
	return 0, fmt.Errorf("unknown copies %q, want bootloader or safe-mode", name)
}

// ProgramCopies programs data into every copy of kind, padded with
// erased flash, waiting for the boot table until ctx is done.
func ProgramCopies(ctx context.Context, table *boottable.BootTable, kind CopyKind, data []byte) error {
	count, size, copyAt := boottable.BootloaderCopiesCount, boottable.BootloaderCopySize, table.BootloaderCopy
	if kind == SafeModeCopies {
		count, size, copyAt = boottable.SafeModeCopiesCount, boottable.SafeModeCopySize, table.SafeModeCopy
	}
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > size {
		return fmt.Errorf("%w: %d bytes, %s copy holds %d", ErrTooLarge, len(data), kind, size)
	}
	if err := table.LockContext(ctx); err != nil {
		return err
	}
	defer table.Unlock()

	readBack := make([]byte, len(data))
	for i := 0; i < count; i++ {
		c := copyAt(i)
		if err := c.Erase(); err != nil {
			return fmt.Errorf("%s copy %d erase: %w", kind, i, err)
		}
		if err := c.Program(0, data); err != nil {
			return fmt.Errorf("%s copy %d program: %w", kind, i, err)
		}
		c.Read(0, readBack)
		if !bytes.Equal(readBack, data) {
			return fmt.Errorf("%s copy %d: %w", kind, i, ErrVerify)
		}
	}
	return nil
}
