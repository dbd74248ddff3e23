package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometry(t *testing.T) {
	assert.Equal(t, uint32(8*1024*1024), BottomBoot8M.Size())
	testCases := []struct {
		offset      uint32
		start, size uint32
	}{
		{0, 0, 0x2000},
		{0x1FFF, 0, 0x2000},
		{0x2000, 0x2000, 0x2000},
		{0xFFFF, 0xE000, 0x2000},
		{0x10000, 0x10000, 0x10000},
		{0x80123, 0x80000, 0x10000},
		{0x7FFFFF, 0x7F0000, 0x10000},
	}
	for _, tc := range testCases {
		start, size := BottomBoot8M.SectorAt(tc.offset)
		assert.Equal(t, tc.start, start, "offset 0x%x", tc.offset)
		assert.Equal(t, tc.size, size, "offset 0x%x", tc.offset)
	}
	_, size := BottomBoot8M.SectorAt(0x800000)
	assert.Equal(t, uint32(0), size)
}

func TestRAMFlashSemantics(t *testing.T) {
	f := NewRAMFlash(BottomBoot8M, 1, 2)
	assert.Equal(t, uint32(1), f.DeviceID())
	assert.Equal(t, uint32(2), f.BootConfig())

	buf := make([]byte, 2)
	f.Read(0x4000, buf)
	assert.Equal(t, []byte{0xFF, 0xFF}, buf)

	require.NoError(t, f.Program(0x4000, []byte{0xF0, 0x0F}))
	require.NoError(t, f.Program(0x4000, []byte{0x3C, 0xFF}))
	f.Read(0x4000, buf)
	assert.Equal(t, []byte{0x30, 0x0F}, buf, "programming only clears bits")

	assert.ErrorIs(t, f.EraseSector(0x4001), ErrNotAligned)
	assert.ErrorIs(t, f.EraseSector(0x800000), ErrOutOfRange)
	require.NoError(t, f.EraseSector(0x4000))
	f.Read(0x4000, buf)
	assert.Equal(t, []byte{0xFF, 0xFF}, buf)

	assert.ErrorIs(t, f.Program(0x7FFFFF, []byte{1, 2}), ErrOutOfRange)
}

func TestRAMFlashFlipBit(t *testing.T) {
	f := NewRAMFlash(BottomBoot8M, 0, 0)
	require.NoError(t, f.FlipBit(10, 3))
	assert.Equal(t, byte(0xF7), f.Bytes()[10])
	assert.ErrorIs(t, f.FlipBit(f.Size(), 0), ErrOutOfRange)
}

func TestRAMFRAM(t *testing.T) {
	f := NewRAMFRAM(16)
	require.NoError(t, f.Write(4, []byte("fram")))
	buf := make([]byte, 4)
	require.NoError(t, f.Read(4, buf))
	assert.Equal(t, "fram", string(buf))
	assert.ErrorIs(t, f.Write(14, []byte("fram")), ErrOutOfRange)
	assert.ErrorIs(t, f.Read(13, buf), ErrOutOfRange)
}

func TestFlashSpan(t *testing.T) {
	f := NewRAMFlash(BottomBoot8M, 0, 0)
	span := NewFlashSpan(f, 0x20000, 0x20000)
	require.NoError(t, span.Program(1, []byte{0x12}))
	assert.Equal(t, byte(0x12), f.Bytes()[0x20001])
	assert.Equal(t, byte(0x12), span.ByteAt(1))
	assert.ErrorIs(t, span.Program(0x1FFFF, []byte{1, 2}), ErrOutOfRange)
	assert.ErrorIs(t, span.EraseRange(0x100, 0x10), ErrNotAligned)

	require.NoError(t, f.Program(0x30000, []byte{0}))
	require.NoError(t, f.Program(0x40000, []byte{0}))
	require.NoError(t, span.Erase())
	assert.Equal(t, byte(0xFF), f.Bytes()[0x20001])
	assert.Equal(t, byte(0xFF), f.Bytes()[0x30000])
	assert.Equal(t, byte(0), f.Bytes()[0x40000], "outside of span")
}

func TestCountingFlash(t *testing.T) {
	f := NewCountingFlash(NewRAMFlash(BottomBoot8M, 0, 0))
	span := NewFlashSpan(f, 0, 0x20000)
	require.NoError(t, span.Erase())
	require.NoError(t, f.Program(0, []byte{1}))
	require.NoError(t, f.ProgramByte(1, 1))
	f.Read(0, make([]byte, 4))
	assert.Equal(t, FlashStats{Programs: 2, Erases: 9}, f.Stats())
}

func TestFileFlashPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")
	geo := Geometry{{Count: 4, SectorSize: 4096}}
	f, err := OpenFileFlash(path, geo, 7, 8)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), f.Bytes()[100])
	require.NoError(t, f.Program(100, []byte{0x42}))
	require.NoError(t, f.FlipBit(5000, 0))

	_, err = OpenFileFlash(path, geo, 7, 8)
	require.ErrorIs(t, err, ErrLocked)
	require.NoError(t, f.Close())

	f, err = OpenFileFlash(path, geo, 7, 8)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, byte(0x42), f.Bytes()[100])
	assert.Equal(t, byte(0xFE), f.Bytes()[5000])
	require.NoError(t, f.EraseSector(0))
	assert.Equal(t, byte(0xFF), f.Bytes()[100])
}

func TestFileFRAMPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fram.img")
	f, err := OpenFileFRAM(path, 256)
	require.NoError(t, err)
	require.NoError(t, f.Write(10, []byte("abc")))
	require.NoError(t, f.Close())

	f, err = OpenFileFRAM(path, 256)
	require.NoError(t, err)
	defer f.Close()
	buf := make([]byte, 3)
	require.NoError(t, f.Read(10, buf))
	assert.Equal(t, "abc", string(buf))
}

func TestEDACFlash(t *testing.T) {
	ram := NewRAMFlash(Geometry{{Count: 2, SectorSize: 4096}}, 0, 0)
	f := NewEDACFlash(ram)
	require.NoError(t, f.Program(40, []byte("single event upset")))

	require.NoError(t, ram.FlipBit(45, 6))
	buf := make([]byte, 18)
	f.Read(40, buf)
	assert.Equal(t, "single event upset", string(buf))
	assert.Equal(t, EDACStats{Corrected: 1}, f.Stats())

	// two flips in the same block.
	require.NoError(t, ram.FlipBit(70, 0))
	require.NoError(t, ram.FlipBit(71, 0))
	f.Read(64, make([]byte, 32))
	assert.Equal(t, uint64(1), f.Stats().NotCorrected)

	require.NoError(t, f.EraseSector(0))
	f.Read(0, make([]byte, 4096))
	assert.Equal(t, EDACStats{Corrected: 1, NotCorrected: 1}, f.Stats())
}

func TestEDACFlashUpsets(t *testing.T) {
	ram := NewRAMFlash(Geometry{{Count: 2, SectorSize: 4096}}, 0, 0)
	f := NewEDACFlash(ram)
	require.NoError(t, f.Program(0, []byte("single event upset")))
	assert.False(t, f.Upsets(0, 4096))

	require.NoError(t, ram.FlipBit(100, 3))
	assert.True(t, f.Upsets(96, 32))
	assert.True(t, f.Upsets(0, 4096))
	assert.False(t, f.Upsets(0, 96), "other blocks")
	assert.False(t, f.Upsets(128, 1024))
	assert.Equal(t, EDACStats{}, f.Stats())

	span := NewFlashSpan(f, 64, 128)
	assert.True(t, span.Upsets(32, 32))
	assert.False(t, NewFlashSpan(ram, 64, 128).Upsets(0, 128), "no read path correction")

	require.NoError(t, f.EraseSector(0))
	assert.False(t, f.Upsets(0, 4096))
}

func TestRAMFlashReadPastEnd(t *testing.T) {
	ram := NewRAMFlash(Geometry{{Count: 1, SectorSize: 4096}}, 0, 0)
	buf := []byte{1, 2, 3, 4}
	assert.NotPanics(t, func() { ram.Read(5000, buf) })
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)

	ram.Read(4094, buf)
	assert.Equal(t, []byte{0xFF, 0xFF, 3, 4}, buf)

	f := NewEDACFlash(ram)
	assert.NotPanics(t, func() { f.Read(4096, buf) })
}
