package elektroid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// microbruteVendorHeader is Arturia's SysEx manufacturer id {0x00, 0x20,
// 0x6B} followed by the MicroBrute family/model bytes, grounded on
// MICROBRUTE_SEQ_REQ/MICROBRUTE_GET_PARAM_MSG's fixed template in
// connectors/microbrute.c.
var microbruteVendorHeader = VendorHeader{0xF0, 0x00, 0x20, 0x6B, 0x04, 0x00}

const (
	microbruteOpSeqRequest = 0x01
	microbruteOpSeqData    = 0x02
	microbruteOpGetParam   = 0x41
	microbruteOpSetParam   = 0x42

	microbruteOpCalibPBCenter   = 0x22
	microbruteOpCalibBothBottom = 0x23
	microbruteOpCalibBothTop    = 0x24
	microbruteOpCalibEnd        = 0x25
)

// microbruteCounter tracks the 7-bit rolling counter MicroBrute requests
// carry, wrapping at 128 rather than the 16-bit sequence numbers Elektron
// devices use. Each request passes it as the first argument byte after the
// opcode (body offset 5); replies are not checked against it.
type microbruteCounter struct {
	next byte
}

func (c *microbruteCounter) allocate() byte {
	v := c.next
	c.next = (c.next + 1) % 128
	return v
}

// mapFunc converts a logical parameter value into the wire byte(s)
// MicroBrute expects. Grounded on the per-parameter value-map function
// pointers in MICROBRUTE_PARAMS.
type mapFunc func(value int) byte

func mapPlusOne(v int) byte { return byte(v + 1) }
func mapTimes42(v int) byte { return byte(v * 42) }
func mapTimes64(v int) byte { return byte(v * 64) }

func mapStepLength(v int) byte {
	switch v {
	case 4:
		return 0
	case 8:
		return 30
	case 16:
		return 60
	case 32:
		return 90
	}
	return 0
}

func mapEnvLegato(v int) byte {
	switch v {
	case 0:
		return 0
	case 1:
		return 43
	case 2:
		return 87
	}
	return 0
}

// microbruteParam is one controllable parameter: its CC number (or 0 if it
// must go over an RPN instead, like bend range) and the function that maps
// a logical value onto the wire byte.
type microbruteParam struct {
	Name string
	CC   byte
	RPN  bool
	Map  mapFunc
}

var microbruteParams = map[string]microbruteParam{
	"glide":       {Name: "glide", CC: 5, Map: mapTimes42},
	"note_prio":   {Name: "note_prio", CC: 16, Map: mapPlusOne},
	"seq_retrig":  {Name: "seq_retrig", CC: 17, Map: mapPlusOne},
	"step_length": {Name: "step_length", CC: 18, Map: mapStepLength},
	"env_legato":  {Name: "env_legato", CC: 19, Map: mapEnvLegato},
	"lfo_key_sync": {Name: "lfo_key_sync", CC: 20, Map: mapPlusOne},
	"bend_range":  {Name: "bend_range", RPN: true, Map: mapTimes64},
}

// MicroBruteConnector implements Connector for Arturia MicroBrute-style
// instruments: parameter setting over CC/RPN (SetParam) or a
// counter-tagged SysEx request (SetParamSysEx), plus a text-based
// step-sequence codec. It has no filesystem
// (FS_SAMPLES/FS_DATA do not apply), matching the original's controller
// connector having no item operations at all.
type MicroBruteConnector struct {
	counter microbruteCounter
	channel byte
}

func NewMicroBruteConnector(channel byte) *MicroBruteConnector {
	return &MicroBruteConnector{channel: channel}
}

func (c *MicroBruteConnector) Init(ctx context.Context, b *Backend) (*Identity, error) {
	args := []byte{c.counter.allocate()}
	reply, err := b.Request(ctx, microbruteOpSeqRequest, args, GuessTimeoutMS, false)
	if err != nil {
		return nil, fmt.Errorf("%w: microbrute did not respond", ErrNotSupported)
	}
	_ = reply
	return &Identity{Name: "MicroBrute", Description: "Arturia MicroBrute"}, nil
}

func (c *MicroBruteConnector) Destroy() {}

// SetParam sets a named parameter, preferring the controller's native CC
// (or RPN, for bend range) over SysEx so the change is reflected
// immediately in hardware LEDs, matching the original's CC-first design.
func (c *MicroBruteConnector) SetParam(b *Backend, name string, value int) error {
	p, ok := microbruteParams[name]
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q", ErrInvalidArg, name)
	}
	wire := p.Map(value)
	if p.RPN {
		return b.SendRPN(c.channel, 0, 0, wire)
	}
	return b.SendController(c.channel, p.CC, wire)
}

// SetParamSysEx is the SysEx-only path for parameters a controller cannot
// reach over CC (used by some firmware revisions and during scripted
// configuration). Grounded on MICROBRUTE_SET_PARAM_MSG.
func (c *MicroBruteConnector) SetParamSysEx(ctx context.Context, b *Backend, name string, value int) error {
	p, ok := microbruteParams[name]
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q", ErrInvalidArg, name)
	}
	args := []byte{c.counter.allocate(), p.Map(value)}
	_, err := b.Request(ctx, microbruteOpSetParam, args, DefaultSysExTimeoutMS, false)
	return err
}

// CalibratePitchBendCenter, CalibrateBothBottom, CalibrateBothTop and
// CalibrateEnd issue the MicroBrute's factory calibration opcodes. They
// have no controller-surface equivalent; a device must be driven through
// all four in sequence to complete a calibration pass.
func (c *MicroBruteConnector) CalibratePitchBendCenter(ctx context.Context, b *Backend) error {
	_, err := b.Request(ctx, microbruteOpCalibPBCenter, []byte{c.counter.allocate()}, DefaultSysExTimeoutMS, false)
	return err
}

func (c *MicroBruteConnector) CalibrateBothBottom(ctx context.Context, b *Backend) error {
	_, err := b.Request(ctx, microbruteOpCalibBothBottom, []byte{c.counter.allocate()}, DefaultSysExTimeoutMS, false)
	return err
}

func (c *MicroBruteConnector) CalibrateBothTop(ctx context.Context, b *Backend) error {
	_, err := b.Request(ctx, microbruteOpCalibBothTop, []byte{c.counter.allocate()}, DefaultSysExTimeoutMS, false)
	return err
}

func (c *MicroBruteConnector) CalibrateEnd(ctx context.Context, b *Backend) error {
	_, err := b.Request(ctx, microbruteOpCalibEnd, []byte{c.counter.allocate()}, DefaultSysExTimeoutMS, false)
	return err
}

// sequenceRestByte is the wire value MicroBrute uses for a rest step; its
// text-codec letters 'x'/'X' both decode to it. Any parsed note below 12
// or at/above sequenceRestByte also clamps to it, per
// microbrute_send_seq_msg's "*step = note >= 0x7f ? 0x7f : note; *step =
// *step < 12 ? 0x7f : *step;".
const sequenceRestByte = 0x7F

// maxSequenceSteps is the per-half step ceiling (offsets 0 and 0x20 in the
// wire record); a full sequence download concatenates both halves into one
// text blob of up to 2*maxSequenceSteps steps.
const maxSequenceSteps = 32

// clampSequenceNote applies the original's two-stage floor/ceiling: a
// value at or above the rest byte becomes a rest, and the result is then
// floored to a rest again if it's below the lowest playable note.
func clampSequenceNote(note int) int {
	step := note
	if step >= sequenceRestByte {
		step = sequenceRestByte
	}
	if step < 12 {
		step = sequenceRestByte
	}
	return step
}

// EncodeSequenceText renders steps as MicroBrute's "N: aa bb cc ... xx"
// text form, where N is the one-based slot number (seqnum+1, matching
// microbrute_download_seq_data's "%1d:" label) and each subsequent token
// is either a decimal note number zero-padded to at least two digits or
// "x" for a rest.
func EncodeSequenceText(slotNum int, steps []int) (string, error) {
	if len(steps) > 2*maxSequenceSteps {
		return "", fmt.Errorf("%w: sequence has %d steps, max is %d", ErrInvalidArg, len(steps), 2*maxSequenceSteps)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d:", slotNum+1)
	for _, s := range steps {
		if s == sequenceRestByte {
			b.WriteString(" x")
			continue
		}
		fmt.Fprintf(&b, " %02d", s)
	}
	return b.String(), nil
}

// DecodeSequenceText parses MicroBrute's "N: aa bb cc ... xx" form back
// into wire-byte steps. The leading "N:" is the slot label, not a step
// count — it is validated and discarded, matching the upload path
// (microbrute_upload), which skips it at a fixed offset and learns the
// slot number from the destination path instead. The remainder is walked
// one character at a time exactly as microbrute_send_seq_msg does:
// control characters and spaces are skipped, a lone leading '0' not
// immediately followed by a space is skipped one character at a time
// (so "00" decodes its second '0' as an ordinary one-digit note, which
// then clamps to a rest since 0 < 12), 'x'/'X' is a rest, and anything
// else is read as a run of decimal digits and clamped with
// clampSequenceNote. Parsing stops once 2*maxSequenceSteps steps have
// been collected.
func DecodeSequenceText(text string) ([]int, error) {
	colon := strings.IndexByte(text, ':')
	if colon < 0 {
		return nil, fmt.Errorf("%w: missing slot label in sequence text %q", ErrInvalidArg, text)
	}
	if _, err := strconv.Atoi(strings.TrimSpace(text[:colon])); err != nil {
		return nil, fmt.Errorf("%w: invalid slot label %q", ErrInvalidArg, text[:colon])
	}

	rest := text[colon+1:]
	steps := make([]int, 0, maxSequenceSteps)
	i := 0
	for len(steps) < 2*maxSequenceSteps && i < len(rest) {
		c := rest[i]
		switch {
		case c < 0x20:
			i++
		case c == ' ':
			i++
		case c == '0' && i+1 < len(rest) && rest[i+1] != ' ':
			i++
		case c == 'x' || c == 'X':
			steps = append(steps, sequenceRestByte)
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
				j++
			}
			n, err := strconv.Atoi(rest[i:j])
			if err != nil {
				return nil, fmt.Errorf("%w: invalid step token %q", ErrInvalidArg, rest[i:j])
			}
			steps = append(steps, clampSequenceNote(n))
			i = j
		default:
			// No digits to read and not a recognized control token;
			// the original falls through to strtol failing and would
			// loop on the same character forever. Treat it as a rest
			// and advance past it instead of hanging.
			steps = append(steps, sequenceRestByte)
			i++
		}
	}
	return steps, nil
}
