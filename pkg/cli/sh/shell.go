// Package sh is the interactive bench shell of the on-board computer.
package sh

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"
	"github.com/inhies/go-bytesize"

	"github.com/robotalks/obc.go/pkg/boottable"
	"github.com/robotalks/obc.go/pkg/config"
	"github.com/robotalks/obc.go/pkg/image"
	"github.com/robotalks/obc.go/pkg/obc"
	"github.com/robotalks/obc.go/pkg/scrubbing"
	"github.com/robotalks/obc.go/pkg/telemetry"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell *ishell.Shell
	OBC   *obc.OBC
}

const shellKey = "$shell"

var (
	evalOnly   bool
	outputJSON bool
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

type action func(s *Shell, args []string) (string, error)

type command struct {
	name    string
	aliases []string
	help    string
	run     action
}

var commands = []command{
	{"status", []string{"st"}, "show the telemetry snapshot", (*Shell).status},
	{"entries", []string{"ls"}, "list program entries", (*Shell).entries},
	{"entry", nil, "INDEX: show a program entry", (*Shell).entry},
	{"settings", nil, "show the boot settings record", (*Shell).settings},
	{"slots", nil, "[PRIMARY FAILSAFE]: show or set boot slot masks", (*Shell).slots},
	{"scrub", nil, "[KIND]: run one unit of a scrubber, all if omitted", (*Shell).scrub},
	{"upload", nil, "INDEX FILE [DESCRIPTION]: program an image into an entry", (*Shell).upload},
	{"copies", nil, "KIND FILE: program bootloader or safe-mode copies", (*Shell).copies},
	{"flip", []string{"seu"}, "ADDR BIT: flip a bit of the raw flash", (*Shell).flip},
	{"verify", nil, "INDEX: check the CRC of an entry", (*Shell).verify},
	{"tc", nil, "COMMAND [ARGS]: send a telecommand", (*Shell).telecommand},
}

// New creates a new shell on o.
func New(o *obc.OBC) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Shell:       ishell.New(),
		OBC:         o,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(o.Config.ID + " > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(ishellCmd(cmd))
	}
	return s
}

func ishellCmd(cmd command) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    cmd.name,
		Aliases: cmd.aliases,
		Help:    cmd.help,
		Func: func(c *ishell.Context) {
			out, err := cmd.run(ShellFrom(c), c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if out != "" {
				c.Println(out)
			}
		},
	}
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Exec runs a shell command and returns its output.
func (s *Shell) Exec(name string, args ...string) (string, error) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.run(s, args)
		}
	}
	return "", fmt.Errorf("unknown command %q", name)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func (s *Shell) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.OBC.Config.LockTimeout)
}

func (s *Shell) status(_ []string) (string, error) {
	snap := s.OBC.Snapshot()
	if s.OutputJSON {
		return snap.JSON()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "id            %s\n", snap.ID)
	fmt.Fprintf(&b, "boot index    %d\n", snap.BootIndex)
	fmt.Fprintf(&b, "boot counter  %d\n", snap.BootCounter)
	fmt.Fprintf(&b, "flash         %d programs, %d erases\n", snap.Flash.Programs, snap.Flash.Erases)
	if snap.EDAC != nil {
		fmt.Fprintf(&b, "edac          %d corrected, %d not corrected, %d corrupted\n",
			snap.EDAC.Corrected, snap.EDAC.NotCorrected, snap.EDAC.Corrupted)
	}
	sc := snap.Scrubbing
	fmt.Fprintf(&b, "primary       %d iterations, offset 0x%x, %d corrected\n",
		sc.Primary.Iterations, sc.Primary.Offset, sc.Primary.SlotsCorrected)
	fmt.Fprintf(&b, "failsafe      %d iterations, offset 0x%x, %d corrected\n",
		sc.Failsafe.Iterations, sc.Failsafe.Offset, sc.Failsafe.SlotsCorrected)
	fmt.Fprintf(&b, "bootloader    %d iterations, %d copies, %d mcu pages corrected\n",
		sc.Bootloader.Iterations, sc.Bootloader.CopiesCorrected, sc.Bootloader.MCUPagesCorrected)
	fmt.Fprintf(&b, "safe mode     %d iterations, %d copies corrected\n",
		sc.SafeMode.Iterations, sc.SafeMode.CopiesCorrected)
	fmt.Fprintf(&b, "boot settings %d iterations", sc.BootSettings.Iterations)
	return b.String(), nil
}

func formatEntry(e telemetry.Entry) string {
	if !e.Valid {
		return fmt.Sprintf("%d  slot %d  invalid", e.Index, e.Index-1)
	}
	state := "CORRUPTED"
	if e.Verified {
		state = "ok"
	}
	return fmt.Sprintf("%d  slot %d  %-9s %10s  crc=0x%04X  %s", e.Index, e.Index-1, state,
		bytesize.New(float64(e.Length)).String(), e.CRC, e.Description)
}

func (s *Shell) entries(_ []string) (string, error) {
	lines := make([]string, 0, boottable.EntriesCount)
	for _, e := range s.OBC.Entries() {
		lines = append(lines, formatEntry(e))
	}
	return strings.Join(lines, "\n"), nil
}

func parseIndex(arg string) (int, error) {
	index, err := strconv.ParseUint(arg, 0, 8)
	if err != nil || index < 1 || index > boottable.EntriesCount {
		return 0, fmt.Errorf("entry index %q not in 1..%d", arg, boottable.EntriesCount)
	}
	return int(index), nil
}

func (s *Shell) entry(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: entry INDEX")
	}
	index, err := parseIndex(args[0])
	if err != nil {
		return "", err
	}
	return formatEntry(s.OBC.Entries()[index-1]), nil
}

func (s *Shell) settings(_ []string) (string, error) {
	r := s.OBC.SettingsRecord()
	return fmt.Sprintf("valid %v\nslots 0b%06b\nfailsafe 0b%06b\nboot counter %d\nlast confirmed %d",
		r.Valid(), r.BootSlots, r.FailsafeBootSlots, r.BootCounter, r.LastConfirmedBootCounter), nil
}

func (s *Shell) slots(args []string) (string, error) {
	switch len(args) {
	case 0:
		r := s.OBC.SettingsRecord()
		return fmt.Sprintf("slots=0b%06b failsafe=0b%06b", r.BootSlots, r.FailsafeBootSlots), nil
	case 2:
		if _, err := s.telecommand([]string{"set-boot-slots", args[0]}); err != nil {
			return "", err
		}
		return s.telecommand([]string{"set-failsafe-slots", args[1]})
	}
	return "", fmt.Errorf("usage: slots [PRIMARY FAILSAFE]")
}

func (s *Shell) scrub(args []string) (string, error) {
	kinds := scrubbing.Kinds()
	if len(args) > 0 {
		kinds = kinds[:0]
		for _, arg := range args {
			k, err := scrubbing.ParseKind(arg)
			if err != nil {
				return "", err
			}
			kinds = append(kinds, k)
		}
	}
	for _, k := range kinds {
		if err := s.OBC.Scrubbing.Run(k); err != nil {
			return "", err
		}
	}
	return s.status(nil)
}

func (s *Shell) upload(args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("usage: upload INDEX FILE [DESCRIPTION]")
	}
	index, err := parseIndex(args[0])
	if err != nil {
		return "", err
	}
	data, err := image.Load(args[1])
	if err != nil {
		return "", err
	}
	ctx, cancel := s.context()
	defer cancel()
	if err := image.ProgramEntry(ctx, s.OBC.Table, index, data, strings.Join(args[2:], " ")); err != nil {
		return "", err
	}
	glog.Infof("entry %d programmed from %s", index, args[1])
	return formatEntry(s.OBC.Entries()[index-1]), nil
}

func (s *Shell) copies(args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("usage: copies KIND FILE")
	}
	kind, err := image.ParseCopyKind(args[0])
	if err != nil {
		return "", err
	}
	data, err := image.Load(args[1])
	if err != nil {
		return "", err
	}
	ctx, cancel := s.context()
	defer cancel()
	if err := image.ProgramCopies(ctx, s.OBC.Table, kind, data); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s copies programmed, %s", kind, bytesize.New(float64(len(data)))), nil
}

func (s *Shell) flip(args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("usage: flip ADDR BIT")
	}
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return "", fmt.Errorf("invalid address %q", args[0])
	}
	bit, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil || bit > 7 {
		return "", fmt.Errorf("invalid bit %q", args[1])
	}
	if err := s.OBC.Device().FlipBit(uint32(addr), uint(bit)); err != nil {
		return "", err
	}
	return fmt.Sprintf("flipped bit %d at 0x%06x", bit, addr), nil
}

func (s *Shell) verify(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: verify INDEX")
	}
	return s.telecommand([]string{"verify", args[0]})
}

func (s *Shell) telecommand(args []string) (string, error) {
	if len(args) == 0 {
		return strings.Join(obc.Commands(), "\n"), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.OBC.Config.LockTimeout+time.Second)
	defer cancel()
	return s.OBC.Submit(ctx, strings.Join(args, " "))
}

// Main is a helper to provide a single call in main. config.SetupFlags
// is expected to be called during init.
func Main() {
	flag.Parse()
	conf, err := config.NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	o, err := obc.Open(conf)
	if err != nil {
		log.Fatalln(err)
	}
	defer o.Close()
	ctx, cancel := context.WithTimeout(context.Background(), conf.LockTimeout)
	defer cancel()
	if err := o.Initialize(ctx); err != nil {
		log.Fatalln(err)
	}
	New(o).Run(flag.Args()...)
}
