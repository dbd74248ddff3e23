// Package telemetry encodes status frames and delivers them to the
// configured downlinks.
package telemetry

import (
	"time"

	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/obc.go/pkg/bootsettings"
	"github.com/robotalks/obc.go/pkg/memory"
	"github.com/robotalks/obc.go/pkg/scrubbing"
)

// Entry summarizes a program entry.
type Entry struct {
	Index       int
	Valid       bool
	Verified    bool
	Length      uint32
	CRC         uint16
	Description string
}

// Snapshot is everything reported in a status frame.
type Snapshot struct {
	ID          string
	Time        time.Time
	Scrubbing   scrubbing.Status
	Settings    bootsettings.Record
	BootIndex   byte
	BootCounter byte
	Entries     []Entry
	Flash       memory.FlashStats
	EDAC        *memory.EDACStats
}

func number(v interface{}) *structpb.Value {
	var f float64
	switch n := v.(type) {
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case uint16:
		f = float64(n)
	case byte:
		f = float64(n)
	case int:
		f = float64(n)
	}
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: f}}
}

func str(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func boolean(b bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: b}}
}

func object(fields map[string]*structpb.Value) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StructValue{StructValue: &structpb.Struct{Fields: fields}}}
}

func list(values []*structpb.Value) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_ListValue{ListValue: &structpb.ListValue{Values: values}}}
}

func programStatus(s scrubbing.ProgramStatus) *structpb.Value {
	return object(map[string]*structpb.Value{
		"iterations":      number(s.Iterations),
		"offset":          number(s.Offset),
		"slots_corrected": number(s.SlotsCorrected),
	})
}

// Struct converts the snapshot into a protobuf Struct.
func (s *Snapshot) Struct() *structpb.Struct {
	entries := make([]*structpb.Value, 0, len(s.Entries))
	for _, e := range s.Entries {
		entries = append(entries, object(map[string]*structpb.Value{
			"index":       number(e.Index),
			"valid":       boolean(e.Valid),
			"verified":    boolean(e.Verified),
			"length":      number(e.Length),
			"crc":         number(e.CRC),
			"description": str(e.Description),
		}))
	}
	fields := map[string]*structpb.Value{
		"id":   str(s.ID),
		"time": str(s.Time.UTC().Format(time.RFC3339)),
		"scrubbing": object(map[string]*structpb.Value{
			"primary":  programStatus(s.Scrubbing.Primary),
			"failsafe": programStatus(s.Scrubbing.Failsafe),
			"bootloader": object(map[string]*structpb.Value{
				"iterations":          number(s.Scrubbing.Bootloader.Iterations),
				"copies_corrected":    number(s.Scrubbing.Bootloader.CopiesCorrected),
				"mcu_pages_corrected": number(s.Scrubbing.Bootloader.MCUPagesCorrected),
			}),
			"safe_mode": object(map[string]*structpb.Value{
				"iterations":       number(s.Scrubbing.SafeMode.Iterations),
				"copies_corrected": number(s.Scrubbing.SafeMode.CopiesCorrected),
			}),
			"boot_settings": object(map[string]*structpb.Value{
				"iterations": number(s.Scrubbing.BootSettings.Iterations),
			}),
		}),
		"boot_settings": object(map[string]*structpb.Value{
			"valid":               boolean(s.Settings.Valid()),
			"boot_slots":          number(s.Settings.BootSlots),
			"failsafe_boot_slots": number(s.Settings.FailsafeBootSlots),
			"boot_counter":        number(s.Settings.BootCounter),
			"last_confirmed_boot": number(s.Settings.LastConfirmedBootCounter),
		}),
		"boot_index":   number(s.BootIndex),
		"boot_counter": number(s.BootCounter),
		"entries":      list(entries),
		"flash": object(map[string]*structpb.Value{
			"programs": number(s.Flash.Programs),
			"erases":   number(s.Flash.Erases),
		}),
	}
	if s.EDAC != nil {
		fields["edac"] = object(map[string]*structpb.Value{
			"corrected":     number(s.EDAC.Corrected),
			"not_corrected": number(s.EDAC.NotCorrected),
			"corrupted":     number(s.EDAC.Corrupted),
		})
	}
	return &structpb.Struct{Fields: fields}
}

// Encode serializes the snapshot as a protobuf frame.
func (s *Snapshot) Encode() ([]byte, error) {
	return proto.Marshal(s.Struct())
}

// JSON renders the snapshot for humans.
func (s *Snapshot) JSON() (string, error) {
	m := jsonpb.Marshaler{Indent: "  "}
	return m.MarshalToString(s.Struct())
}

// Decode parses a frame produced by Encode.
func Decode(frame []byte) (*structpb.Struct, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(frame, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
