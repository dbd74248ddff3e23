package obc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/obc.go/pkg/boottable"
	"github.com/robotalks/obc.go/pkg/bootsettings"
	fx "github.com/robotalks/obc.go/pkg/framework"
	"github.com/robotalks/obc.go/pkg/scrubbing"
)

var (
	// ErrUnknownCommand indicates a telecommand name which is not supported.
	ErrUnknownCommand = errors.New("unknown telecommand")
	// ErrInvalidSlots indicates a boot slot mask not selecting exactly 3 slots.
	ErrInvalidSlots = errors.New("boot slots must select exactly 3 of 6 slots")
)

// Telecommand is a parsed command line, posted to the mission loop as
// a message.
type Telecommand struct {
	Name string
	Args []string

	done chan result
}

type result struct {
	text string
	err  error
}

// MessageName implements framework.Message.
func (tc *Telecommand) MessageName() string {
	return "telecommand " + tc.Name
}

type command struct {
	args  int
	usage string
	run   func(o *OBC, ctx context.Context, args []string) (string, error)
}

var commands = map[string]command{
	"set-boot-slots": {1, "MASK", func(o *OBC, ctx context.Context, args []string) (string, error) {
		return o.setSlots(ctx, args[0], (*bootsettings.Settings).SetBootSlots)
	}},
	"set-failsafe-slots": {1, "MASK", func(o *OBC, ctx context.Context, args []string) (string, error) {
		return o.setSlots(ctx, args[0], (*bootsettings.Settings).SetFailsafeBootSlots)
	}},
	"set-boot-index": {1, "INDEX", func(o *OBC, ctx context.Context, args []string) (string, error) {
		index, err := parseUint(args[0], 8)
		if err != nil {
			return "", err
		}
		if index < 1 || index > boottable.EntriesCount {
			return "", fmt.Errorf("boot index %d out of 1..%d", index, boottable.EntriesCount)
		}
		return "", o.withTable(ctx, func() error { return o.Table.SetBootIndex(byte(index)) })
	}},
	"reset-boot-counter": {0, "", func(o *OBC, ctx context.Context, _ []string) (string, error) {
		return "", o.withTable(ctx, func() error { return o.Table.SetBootCounter(0) })
	}},
	"confirm-boot": {0, "", func(o *OBC, ctx context.Context, _ []string) (string, error) {
		return "", o.withSettings(ctx, o.Settings.ConfirmBoot)
	}},
	"scrub": {1, "KIND", func(o *OBC, _ context.Context, args []string) (string, error) {
		kind, err := scrubbing.ParseKind(args[0])
		if err != nil {
			return "", err
		}
		if err := o.Scrubbing.Run(kind); err != nil {
			return "", err
		}
		return fmt.Sprintf("%+v", o.Scrubbing.Status()), nil
	}},
	"status": {0, "", func(o *OBC, _ context.Context, _ []string) (string, error) {
		r := o.SettingsRecord()
		if err := o.Telemetry.Publish(time.Now()); err != nil {
			return "", err
		}
		return fmt.Sprintf("boot_index=%d boot_counter=%d slots=0b%06b failsafe=0b%06b settings_valid=%v",
			o.Table.BootIndex(), o.Table.BootCounter(), r.BootSlots, r.FailsafeBootSlots, r.Valid()), nil
	}},
	"verify": {1, "INDEX", func(o *OBC, ctx context.Context, args []string) (string, error) {
		index, err := parseUint(args[0], 8)
		if err != nil {
			return "", err
		}
		if index < 1 || index > boottable.EntriesCount {
			return "", fmt.Errorf("entry %d out of 1..%d", index, boottable.EntriesCount)
		}
		var ok bool
		err = o.withTable(ctx, func() error {
			ok = o.Table.Entry(int(index)).Verify()
			return nil
		})
		return strconv.FormatBool(ok), err
	}},
}

// Commands lists the supported telecommands with their usage.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name, cmd := range commands {
		names = append(names, strings.TrimSpace(name+" "+cmd.usage))
	}
	sort.Strings(names)
	return names
}

// ParseTelecommand parses "name [args...]".
func ParseTelecommand(line string) (*Telecommand, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}
	name := strings.ToLower(fields[0])
	cmd, ok := commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
	if len(fields)-1 != cmd.args {
		return nil, fmt.Errorf("usage: %s", strings.TrimSpace(name+" "+cmd.usage))
	}
	return &Telecommand{Name: name, Args: fields[1:], done: make(chan result, 1)}, nil
}

// Execute runs tc on the calling goroutine. Regions held by someone
// else are waited for at most the configured lock timeout.
func (o *OBC) Execute(ctx context.Context, tc *Telecommand) (string, error) {
	cmd, ok := commands[tc.Name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, tc.Name)
	}
	glog.V(1).Infof("telecommand %s %v", tc.Name, tc.Args)
	return cmd.run(o, ctx, tc.Args)
}

// Submit parses line and executes it from the mission loop, or
// directly when the OBC is not in a loop.
func (o *OBC) Submit(ctx context.Context, line string) (string, error) {
	tc, err := ParseTelecommand(line)
	if err != nil {
		return "", err
	}
	if o.loop == nil {
		return o.Execute(ctx, tc)
	}
	o.loop.PostMessage(tc)
	o.loop.TriggerNext()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-tc.done:
		return r.text, r.err
	}
}

func (o *OBC) processTelecommands(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		tc, ok := mc.CurrentMessage().(*Telecommand)
		if !ok {
			return
		}
		mc.MessageTaken()
		text, err := o.Execute(cc.Context(), tc)
		if err != nil {
			glog.Warningf("telecommand %s: %v", tc.Name, err)
		}
		tc.done <- result{text: text, err: err}
	}))
	return nil
}

func (o *OBC) lockContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := o.Config.LockTimeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (o *OBC) withTable(ctx context.Context, fn func() error) error {
	lctx, cancel := o.lockContext(ctx)
	defer cancel()
	if err := o.Table.LockContext(lctx); err != nil {
		return fmt.Errorf("boot table busy: %w", err)
	}
	defer o.Table.Unlock()
	return fn()
}

func (o *OBC) withSettings(ctx context.Context, fn func() error) error {
	lctx, cancel := o.lockContext(ctx)
	defer cancel()
	if err := o.Settings.LockContext(lctx); err != nil {
		return fmt.Errorf("boot settings busy: %w", err)
	}
	defer o.Settings.Unlock()
	return fn()
}

func (o *OBC) setSlots(ctx context.Context, arg string, set func(*bootsettings.Settings, byte) error) (string, error) {
	mask, err := parseUint(arg, 8)
	if err != nil {
		return "", err
	}
	if !bootsettings.CheckBootSlots(byte(mask)) {
		return "", fmt.Errorf("%w: 0b%06b", ErrInvalidSlots, mask)
	}
	if err := o.withSettings(ctx, func() error { return set(o.Settings, byte(mask)) }); err != nil {
		return "", err
	}
	primary, failsafe := o.Settings.BootSlots(), o.Settings.FailsafeBootSlots()
	o.Scrubbing.SetSlots(primary, failsafe)
	return fmt.Sprintf("slots=0b%06b failsafe=0b%06b", primary, failsafe), nil
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
