package sh

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/obc.go/pkg/boottable"
	"github.com/robotalks/obc.go/pkg/config"
	"github.com/robotalks/obc.go/pkg/obc"
)

func newTestShell(t *testing.T) *Shell {
	conf := config.Default()
	conf.ID = "bench"
	conf.LockTimeout = 20 * time.Millisecond
	config.Normalize(conf)
	o, err := obc.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return &Shell{OBC: o}
}

func writeFile(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestUploadAndEntries(t *testing.T) {
	s := newTestShell(t)
	path := writeFile(t, "app.bin", bytes.Repeat([]byte("Program"), 300))

	out, err := s.Exec("upload", "2", path, "flight", "v1")
	require.NoError(t, err)
	assert.Contains(t, out, "slot 1")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "flight v1")

	out, err = s.Exec("entries")
	require.NoError(t, err)
	assert.Contains(t, out, "1  slot 0  invalid")
	assert.Contains(t, out, "flight v1")

	out, err = s.Exec("verify", "2")
	require.NoError(t, err)
	assert.Equal(t, "true", out)

	_, err = s.Exec("upload", "7", path)
	assert.Error(t, err)
	_, err = s.Exec("entry", "0")
	assert.Error(t, err)
}

func TestFlipAndScrub(t *testing.T) {
	s := newTestShell(t)
	path := writeFile(t, "safe.bin", bytes.Repeat([]byte{0xA5}, 512))
	_, err := s.Exec("copies", "safe-mode", path)
	require.NoError(t, err)

	out, err := s.Exec("flip", "0x3D0000", "3")
	require.NoError(t, err)
	assert.Equal(t, "flipped bit 3 at 0x3d0000", out)

	out, err = s.Exec("scrub", "safe-mode")
	require.NoError(t, err)
	assert.Contains(t, out, "safe mode     1 iterations, 1 copies corrected")

	var b [1]byte
	s.OBC.Table.SafeModeCopy(0).Read(0, b[:])
	assert.Equal(t, byte(0xA5), b[0])

	_, err = s.Exec("flip", "0x3D0000", "8")
	assert.Error(t, err)
	_, err = s.Exec("scrub", "eeprom")
	assert.Error(t, err)
}

func TestSlotsAndSettings(t *testing.T) {
	s := newTestShell(t)
	out, err := s.Exec("slots")
	require.NoError(t, err)
	assert.Equal(t, "slots=0b000111 failsafe=0b111000", out)

	out, err = s.Exec("slots", "0b110100", "0b001011")
	require.NoError(t, err)
	assert.Equal(t, "slots=0b110100 failsafe=0b001011", out)

	out, err = s.Exec("settings")
	require.NoError(t, err)
	assert.Contains(t, out, "valid true")

	_, err = s.Exec("slots", "0b1")
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	s := newTestShell(t)
	out, err := s.Exec("status")
	require.NoError(t, err)
	assert.Contains(t, out, "id            bench")

	s.OutputJSON = true
	out, err = s.Exec("status")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "bench"`)
}

func TestTelecommand(t *testing.T) {
	s := newTestShell(t)
	out, err := s.Exec("tc")
	require.NoError(t, err)
	assert.Contains(t, out, "set-boot-index INDEX")

	_, err = s.Exec("tc", "set-boot-index", "4")
	require.NoError(t, err)
	assert.Equal(t, byte(4), s.OBC.Table.BootIndex())

	_, err = s.Exec("nope")
	assert.Error(t, err)
}

func TestEntryIndexMatchesSlot(t *testing.T) {
	s := newTestShell(t)
	out, err := s.Exec("entry", "6")
	require.NoError(t, err)
	assert.Equal(t, "6  slot 5  invalid", out)
	assert.Equal(t, 6, boottable.EntriesCount)
}
