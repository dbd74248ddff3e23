package bootsettings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/obc.go/pkg/fram"
	"github.com/robotalks/obc.go/pkg/memory"
)

func TestInvalidMagicDefaults(t *testing.T) {
	raw := memory.NewRAMFRAM(64)
	copy(raw.Bytes()[8:], []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x2A, 0x15, 9, 9, 9, 9})
	s := New(raw, 8)
	assert.False(t, s.IsValid())
	assert.Equal(t, byte(0b111), s.BootSlots())
	assert.Equal(t, byte(0b111000), s.FailsafeBootSlots())
	assert.Equal(t, uint32(0), s.BootCounter())
	assert.Equal(t, uint32(0), s.LastConfirmedBootCounter())
}

func TestRawLayout(t *testing.T) {
	raw := memory.NewRAMFRAM(64)
	s := New(raw, 0)
	require.NoError(t, s.SetBootSlots(0b101010))
	require.NoError(t, s.SetBootCounter(0x01020304))
	assert.Equal(t, []byte{
		0xC3, 0x5A, 0xBB, 0x7F, // magic
		0b101010, 0b111000, // slots
		0x04, 0x03, 0x02, 0x01, // boot counter
		0, 0, 0, 0, // last confirmed
		0, 0,
	}, raw.Bytes()[:Size])
}

func TestSettersInitializeRecord(t *testing.T) {
	s := New(memory.NewRAMFRAM(64), 0)
	require.NoError(t, s.SetFailsafeBootSlots(0b011100))
	assert.True(t, s.IsValid())
	assert.Equal(t, DefaultBootSlots, s.BootSlots())
	assert.Equal(t, byte(0b011100), s.FailsafeBootSlots())
}

func TestConfirmBoot(t *testing.T) {
	s := New(memory.NewRAMFRAM(64), 0)
	require.NoError(t, s.SetBootCounter(12))
	require.NoError(t, s.ConfirmBoot())
	assert.Equal(t, uint32(12), s.LastConfirmedBootCounter())
	require.NoError(t, s.SetBootCounter(13))
	assert.Equal(t, uint32(12), s.LastConfirmedBootCounter())
}

func TestMarkAsValidKeepsFields(t *testing.T) {
	raw := memory.NewRAMFRAM(64)
	copy(raw.Bytes()[4:], []byte{0b110001, 0b001110, 5, 0, 0, 0})
	s := New(raw, 0)
	assert.Equal(t, DefaultBootSlots, s.BootSlots())
	require.NoError(t, s.MarkAsValid())
	assert.Equal(t, byte(0b110001), s.BootSlots())
	assert.Equal(t, uint32(5), s.BootCounter())
}

type stuckFRAM struct {
	*memory.RAMFRAM
}

func (f stuckFRAM) Write(address uint32, p []byte) error { return nil }

func TestWriteVerified(t *testing.T) {
	s := New(stuckFRAM{memory.NewRAMFRAM(64)}, 0)
	require.ErrorIs(t, s.SetBootSlots(0b000111), ErrVerify)
}

func TestCheckBootSlots(t *testing.T) {
	testCases := []struct {
		mask byte
		ok   bool
	}{
		{0b000111, true},
		{0b111000, true},
		{0b100101, true},
		{0b000011, false},
		{0b001111, false},
		{0b11000001, false},
		{0, false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.ok, CheckBootSlots(tc.mask), "mask %08b", tc.mask)
	}
}

func TestRefreshRepairsBackend(t *testing.T) {
	backends := [3]*memory.RAMFRAM{memory.NewRAMFRAM(64), memory.NewRAMFRAM(64), memory.NewRAMFRAM(64)}
	s := New(fram.NewRedundant(backends[0], backends[1], backends[2]), 16)
	require.NoError(t, s.SetBootSlots(0b010101))

	backends[1].Bytes()[16+bootSlotsOffset] ^= 0x80
	require.NoError(t, s.Refresh())
	for _, b := range backends {
		assert.Equal(t, byte(0b010101), b.Bytes()[16+bootSlotsOffset])
	}
}
