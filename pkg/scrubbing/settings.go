package scrubbing

import (
	"github.com/robotalks/obc.go/pkg/bootsettings"
)

// BootSettingsStatus is the state of a BootSettingsScrubber.
type BootSettingsStatus struct {
	Iterations uint32
}

// BootSettingsScrubber refreshes the boot settings record, so every
// FRAM holds the voted copy.
type BootSettingsScrubber struct {
	settings *bootsettings.Settings
	status   BootSettingsStatus
}

// NewBootSettingsScrubber creates a BootSettingsScrubber.
func NewBootSettingsScrubber(settings *bootsettings.Settings) *BootSettingsScrubber {
	return &BootSettingsScrubber{settings: settings}
}

// Status returns the counters.
func (s *BootSettingsScrubber) Status() BootSettingsStatus {
	return s.status
}

// Scrub refreshes the record. It does nothing when the record is busy.
func (s *BootSettingsScrubber) Scrub() error {
	if !s.settings.TryLock() {
		return nil
	}
	defer s.settings.Unlock()
	s.status.Iterations++
	return s.settings.Refresh()
}
