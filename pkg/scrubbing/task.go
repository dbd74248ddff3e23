package scrubbing

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/obc.go/pkg/boottable"
	"github.com/robotalks/obc.go/pkg/bootsettings"
	fx "github.com/robotalks/obc.go/pkg/framework"
	"github.com/robotalks/obc.go/pkg/memory"
)

// Kind identifies a scrubber of the Task.
type Kind int

// Scrubber kinds.
const (
	Primary Kind = iota
	Failsafe
	Bootloader
	SafeMode
	BootSettings
	kindCount
)

var kindNames = [kindCount]string{"primary", "failsafe", "bootloader", "safe-mode", "boot-settings"}

func (k Kind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds lists every scrubber kind.
func Kinds() []Kind {
	return []Kind{Primary, Failsafe, Bootloader, SafeMode, BootSettings}
}

// ParseKind parses the name of a kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown scrubber %q, want one of %s", name, strings.Join(kindNames[:], ", "))
}

// Periods configures how often each scrubber runs. Zero disables it.
type Periods struct {
	Primary      time.Duration
	Failsafe     time.Duration
	Bootloader   time.Duration
	SafeMode     time.Duration
	BootSettings time.Duration
}

func (p Periods) of(k Kind) time.Duration {
	switch k {
	case Primary:
		return p.Primary
	case Failsafe:
		return p.Failsafe
	case Bootloader:
		return p.Bootloader
	case SafeMode:
		return p.SafeMode
	case BootSettings:
		return p.BootSettings
	}
	return 0
}

// Status aggregates the counters of all scrubbers.
type Status struct {
	Primary      ProgramStatus
	Failsafe     ProgramStatus
	Bootloader   BootloaderStatus
	SafeMode     CopiesStatus
	BootSettings BootSettingsStatus
}

// Task runs every scrubber from the mission loop, each on its own period.
type Task struct {
	Periods Periods

	table      *boottable.BootTable
	primary    *ProgramScrubber
	failsafe   *ProgramScrubber
	bootloader *BootloaderScrubber
	safeMode   *SafeModeScrubber
	settings   *BootSettingsScrubber
	due        [kindCount]time.Time

	lock   sync.Mutex
	status Status
}

// NewTask creates a Task scrubbing the slots currently selected in
// settings. mcu may be nil.
func NewTask(table *boottable.BootTable, settings *bootsettings.Settings, mcu memory.Flash, periods Periods) *Task {
	flash := table.Flash()
	_, sector := flash.SectorAt(boottable.EntriesBase)
	t := &Task{
		Periods:    periods,
		table:      table,
		primary:    NewProgramScrubber(make([]byte, sector), table, flash, settings.BootSlots()),
		failsafe:   NewProgramScrubber(make([]byte, sector), table, flash, settings.FailsafeBootSlots()),
		bootloader: NewBootloaderScrubber(make([]byte, boottable.BootloaderCopySize), table, mcu),
		safeMode:   NewSafeModeScrubber(make([]byte, boottable.SafeModeCopySize), table),
		settings:   NewBootSettingsScrubber(settings),
	}
	t.snapshot()
	return t
}

// AddToLoop implements framework.LoopAdder.
func (t *Task) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvScrub, t)
}

// SetRewriteMCU enables or disables repairing the MCU bootloader.
func (t *Task) SetRewriteMCU(enable bool) {
	t.bootloader.RewriteMCU = enable
}

// SetSlots replaces the program scrubbers after the boot slot
// selection changed. Masks which are unchanged keep their scrubber.
// A replaced scrubber restarts at the first window, its Iterations and
// SlotsCorrected counters carry over.
func (t *Task) SetSlots(primary, failsafe byte) {
	if t.primary.SlotsMask() != primary {
		t.primary = t.reslot(t.primary, primary)
	}
	if t.failsafe.SlotsMask() != failsafe {
		t.failsafe = t.reslot(t.failsafe, failsafe)
	}
	t.snapshot()
}

func (t *Task) reslot(old *ProgramScrubber, mask byte) *ProgramScrubber {
	s := NewProgramScrubber(old.buffer, t.table, t.table.Flash(), mask)
	s.status.Iterations = old.status.Iterations
	s.status.SlotsCorrected = old.status.SlotsCorrected
	return s
}

// Control implements framework.Controller.
func (t *Task) Control(cc fx.ControlContext) error {
	now := cc.Time()
	var errs fx.AggregatedError
	for _, k := range Kinds() {
		period := t.Periods.of(k)
		if period <= 0 || now.Before(t.due[k]) {
			continue
		}
		t.due[k] = now.Add(period)
		errs.Add(t.Run(k))
	}
	return errs.Aggregate()
}

// Run runs one unit of the scrubber of kind immediately.
func (t *Task) Run(k Kind) error {
	var err error
	switch k {
	case Primary:
		err = t.primary.ScrubSlots()
	case Failsafe:
		err = t.failsafe.ScrubSlots()
	case Bootloader:
		err = t.bootloader.Scrub()
	case SafeMode:
		err = t.safeMode.Scrub()
	case BootSettings:
		err = t.settings.Scrub()
	default:
		return fmt.Errorf("unknown scrubber %v", k)
	}
	status := t.snapshot()
	if glog.V(2) {
		glog.Infof("scrub %s: %+v", k, status)
	}
	if err != nil {
		return fmt.Errorf("scrub %s: %w", k, err)
	}
	return nil
}

// Status returns the latest counters, safe to call from any goroutine.
func (t *Task) Status() Status {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.status
}

func (t *Task) snapshot() Status {
	status := Status{
		Primary:      t.primary.Status(),
		Failsafe:     t.failsafe.Status(),
		Bootloader:   t.bootloader.Status(),
		SafeMode:     t.safeMode.Status(),
		BootSettings: t.settings.Status(),
	}
	t.lock.Lock()
	t.status = status
	t.lock.Unlock()
	return status
}
