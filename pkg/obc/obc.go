// Package obc assembles the storage stack of the on-board computer
// from its configuration and connects it to the mission loop.
package obc

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/obc.go/pkg/boottable"
	"github.com/robotalks/obc.go/pkg/bootsettings"
	"github.com/robotalks/obc.go/pkg/config"
	"github.com/robotalks/obc.go/pkg/fram"
	fx "github.com/robotalks/obc.go/pkg/framework"
	"github.com/robotalks/obc.go/pkg/memory"
	"github.com/robotalks/obc.go/pkg/scrubbing"
	"github.com/robotalks/obc.go/pkg/telemetry"
)

// BitFlipper injects single event upsets into a device.
type BitFlipper interface {
	FlipBit(offset uint32, bit uint) error
}

// OBC is the assembled on-board computer storage stack.
type OBC struct {
	Config    *config.Config
	Table     *boottable.BootTable
	Settings  *bootsettings.Settings
	Scrubbing *scrubbing.Task
	Telemetry *telemetry.Publisher

	device   BitFlipper
	counting *memory.CountingFlash
	edac     *memory.EDACFlash
	closers  []io.Closer
	loop     *fx.Loop
}

// Open creates the devices described by conf, file backed where an
// image is configured, in memory otherwise. conf must be normalized.
func Open(conf *config.Config) (*OBC, error) {
	o := &OBC{Config: conf}
	fail := func(err error) (*OBC, error) {
		o.Close()
		return nil, err
	}

	var device memory.Flash
	if path := conf.Flash.Image; path != "" {
		f, err := memory.OpenFileFlash(path, memory.BottomBoot8M, boottable.ExpectedDeviceID, boottable.ExpectedBootConfig)
		if err != nil {
			return fail(fmt.Errorf("flash: %w", err))
		}
		o.closers = append(o.closers, f)
		device, o.device = f, f
	} else {
		f := memory.NewRAMFlash(memory.BottomBoot8M, boottable.ExpectedDeviceID, boottable.ExpectedBootConfig)
		device, o.device = f, f
	}
	o.counting = memory.NewCountingFlash(device)
	var flash memory.Flash = o.counting
	if conf.Flash.EDAC {
		o.edac = memory.NewEDACFlash(o.counting)
		flash = o.edac
	}

	var mcu memory.Flash
	if path := conf.MCU.Image; path != "" {
		f, err := memory.OpenFileFlash(path, memory.MCUFlash1M, 0, 0)
		if err != nil {
			return fail(fmt.Errorf("mcu: %w", err))
		}
		o.closers = append(o.closers, f)
		mcu = f
	}

	var frams [3]memory.FRAM
	for i, path := range conf.FRAM.Images {
		if path == "" {
			frams[i] = memory.NewRAMFRAM(uint32(conf.FRAM.Size))
			continue
		}
		f, err := memory.OpenFileFRAM(path, uint32(conf.FRAM.Size))
		if err != nil {
			return fail(fmt.Errorf("fram %d: %w", i, err))
		}
		o.closers = append(o.closers, f)
		frams[i] = f
	}

	o.Table = boottable.New(flash)
	o.Settings = bootsettings.New(fram.NewRedundant(frams[0], frams[1], frams[2]), conf.FRAM.SettingsAddress)
	o.Scrubbing = scrubbing.NewTask(o.Table, o.Settings, mcu, Periods(conf.Scrubbing))
	o.Scrubbing.SetRewriteMCU(conf.MCU.RewriteBootloader == nil || *conf.MCU.RewriteBootloader)
	o.Telemetry = telemetry.NewPublisher(conf.Telemetry.Period, o.Snapshot)
	return o, nil
}

// Periods converts the configured periods, negative ones disable the
// scrubber.
func Periods(c config.ScrubbingConfig) scrubbing.Periods {
	enabled := func(d time.Duration) time.Duration {
		return max(d, 0)
	}
	return scrubbing.Periods{
		Primary:      enabled(c.Primary),
		Failsafe:     enabled(c.Failsafe),
		Bootloader:   enabled(c.Bootloader),
		SafeMode:     enabled(c.SafeMode),
		BootSettings: enabled(c.BootSettings),
	}
}

// Close releases file backed devices.
func (o *OBC) Close() error {
	var errs fx.AggregatedError
	for i := len(o.closers) - 1; i >= 0; i-- {
		errs.Add(o.closers[i].Close())
	}
	o.closers = nil
	return errs.Aggregate()
}

// Device is the raw program flash, below EDAC.
func (o *OBC) Device() BitFlipper {
	return o.device
}

// Initialize checks the flash device. It blocks until ctx is done when
// the device is not the expected one.
func (o *OBC) Initialize(ctx context.Context) error {
	if err := o.Table.Initialize(ctx); err != nil {
		return err
	}
	if !o.Settings.IsValid() {
		glog.Warning("boot settings not initialized, defaults in use")
	}
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (o *OBC) AddToLoop(l *fx.Loop) {
	o.loop = l
	l.AddController(fx.PrLvTelecommand, fx.ControlFunc(o.processTelecommands))
	l.Add(o.Scrubbing, o.Telemetry)
}

// SettingsRecord reads the boot settings as stored, replaced by the
// defaults with a cleared magic when invalid.
func (o *OBC) SettingsRecord() bootsettings.Record {
	r, err := o.Settings.ReadRaw()
	if err == nil && r.Valid() {
		return r
	}
	r = bootsettings.DefaultRecord()
	r.Magic = 0
	return r
}

// Entries summarizes every program entry. Contents are only verified
// when the boot table is not busy.
func (o *OBC) Entries() []telemetry.Entry {
	verify := o.Table.TryLock()
	if verify {
		defer o.Table.Unlock()
	}
	entries := make([]telemetry.Entry, 0, boottable.EntriesCount)
	for i := 1; i <= boottable.EntriesCount; i++ {
		e := o.Table.Entry(i)
		info := telemetry.Entry{Index: i, Valid: e.IsValid()}
		if info.Valid {
			info.Length = e.Length()
			info.CRC = e.CRC()
			info.Description = e.Description()
			info.Verified = verify && e.Verify()
		}
		entries = append(entries, info)
	}
	return entries
}

// Snapshot collects the status reported in telemetry.
func (o *OBC) Snapshot() telemetry.Snapshot {
	snap := telemetry.Snapshot{
		ID:          o.Config.ID,
		Time:        time.Now(),
		Scrubbing:   o.Scrubbing.Status(),
		Settings:    o.SettingsRecord(),
		BootIndex:   o.Table.BootIndex(),
		BootCounter: o.Table.BootCounter(),
		Entries:     o.Entries(),
		Flash:       o.counting.Stats(),
	}
	if o.edac != nil {
		stats := o.edac.Stats()
		snap.EDAC = &stats
	}
	return snap
}
