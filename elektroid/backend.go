package elektroid

import (
	"context"
	"fmt"
	"sync"
)

// DefaultSysExTimeoutMS is BE_SYSEX_TIMEOUT_MS from backend.h: the budget
// for an ordinary request/reply round trip.
const DefaultSysExTimeoutMS = 5000

// GuessTimeoutMS is BE_SYSEX_TIMEOUT_GUESS_MS: a shorter budget used for
// probes where silence just means "not supported", not "broken".
const GuessTimeoutMS = 1000

// Identity is the handshake payload recorded by Backend.Init, grounded on
// connector_init's name/description/version fields.
type Identity struct {
	Name        string
	Description string
	Version     [4]byte // major, minor, micro, subminor
}

// Connector is implemented by each device family's wire-protocol adapter
// (elektron_connector.go, microbrute_connector.go). Destroy releases any
// connector-private state; it must be safe to call even if Init failed.
type Connector interface {
	Init(ctx context.Context, b *Backend) (*Identity, error)
	Destroy()
}

// Backend is one open connection to a device: a MIDI port plus the
// sequencing, serialization and identity state every connector shares.
// Grounded on struct backend in backend.h.
type Backend struct {
	mu   sync.Mutex
	port *MIDIPort
	seq  seqCounter

	header VendorHeader
	conn   Connector
	id     *Identity

	fsOps []FSOperations

	// storageStats and upgradeOS are set by connectors that support
	// them; nil otherwise, matching the original's optional function
	// pointers (get_storage_stats, upgrade_os) on struct backend.
	storageStats func(ctx context.Context, b *Backend, storageKind byte) (*StorageStats, error)
	upgradeOS    func(ctx context.Context, b *Backend, image []byte, progress ProgressFunc) error
}

// NewBackend opens devnode and runs conn's handshake over it.
func NewBackend(ctx context.Context, devnode string, header VendorHeader, conn Connector) (*Backend, error) {
	port, err := OpenMIDIPort(devnode)
	if err != nil {
		return nil, err
	}
	b := &Backend{port: port, header: header, conn: conn}

	id, err := conn.Init(ctx, b)
	if err != nil {
		conn.Destroy()
		port.Close()
		return nil, fmt.Errorf("handshake with %s: %w", devnode, err)
	}
	b.id = id
	return b, nil
}

// Destroy tears down the connector and closes the underlying port. Safe to
// call once, after which the Backend must not be used again.
func (b *Backend) Destroy() {
	if b.conn != nil {
		b.conn.Destroy()
	}
	if b.port != nil {
		b.port.Close()
	}
}

// Identity returns the handshake result recorded at Init time.
func (b *Backend) Identity() *Identity {
	return b.id
}

// FSOps returns the filesystems the connected device's connector
// advertised during Init (empty for a controller-only connector like
// MicroBrute).
func (b *Backend) FSOps() []FSOperations {
	return b.fsOps
}

// UpgradeOS flashes image to the device via the connector's registered OS
// upgrade routine, or ErrNotSupported if the connector has none.
func (b *Backend) UpgradeOS(ctx context.Context, image []byte, progress ProgressFunc) error {
	if b.upgradeOS == nil {
		return fmt.Errorf("%w: device has no OS upgrade routine", ErrNotSupported)
	}
	return b.upgradeOS(ctx, b, image, progress)
}

// StorageStats reports free/used space for storageKind (StoragePlusDrive or
// StorageRAM) via the connector's registered storage-stats routine, or
// ErrNotSupported if the connector has none.
func (b *Backend) StorageStats(ctx context.Context, storageKind byte) (*StorageStats, error) {
	if b.storageStats == nil {
		return nil, fmt.Errorf("%w: device has no storage stats", ErrNotSupported)
	}
	return b.storageStats(ctx, b, storageKind)
}

// Request serializes one request/reply round trip against the port: it
// holds Backend.mu for the duration, allocates the next sequence number,
// and delegates the wire exchange to TxAndRxSysex. Every connector opcode
// call goes through this so concurrent callers cannot interleave partial
// messages on the wire (§5). On ctx cancellation, Request cancels the
// in-flight transfer and waits for the port goroutine to actually return
// before releasing the lock, rather than unlocking out from under port
// I/O that is still running — holding the lock across the full exchange
// is the whole point of serializing here.
func (b *Backend) Request(ctx context.Context, opcode byte, args []byte, timeoutMS int, batch bool) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.seq.allocate()
	body := newMessageBody(opcode, args...)

	type result struct {
		reply []byte
		err   error
	}
	var handle transferHandle
	done := make(chan result, 1)
	go func() {
		reply, err := TxAndRxSysex(b.port, b.header, seq, body, timeoutMS, batch, &handle)
		done <- result{reply, err}
	}()

	select {
	case <-ctx.Done():
		handle.Cancel()
		<-done
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case r := <-done:
		return r.reply, r.err
	}
}

// Check is a cheap liveness probe: a PING round trip with the shorter
// guess timeout. Grounded on the device-presence check connector_init
// performs before trusting any further reply.
func (b *Backend) Check(ctx context.Context) error {
	_, err := b.Request(ctx, opPing, nil, GuessTimeoutMS, false)
	return err
}

// ProgramChange sends a MIDI Program Change on channel ch.
func (b *Backend) ProgramChange(ch, program byte) error {
	return b.sendShort(0xC0|ch&0x0F, program, 0, false)
}

// SendController sends a MIDI Control Change on channel ch.
func (b *Backend) SendController(ch, controller, value byte) error {
	return b.sendShort(0xB0|ch&0x0F, controller, value, true)
}

// SendNoteOn sends a MIDI Note On on channel ch.
func (b *Backend) SendNoteOn(ch, note, velocity byte) error {
	return b.sendShort(0x90|ch&0x0F, note, velocity, true)
}

// SendNoteOff sends a MIDI Note Off on channel ch.
func (b *Backend) SendNoteOff(ch, note, velocity byte) error {
	return b.sendShort(0x80|ch&0x0F, note, velocity, true)
}

// SendRPN sends a Registered Parameter Number MSB/LSB pair followed by a
// Data Entry value, the sequence MicroBrute's bend-range parameter uses in
// place of a plain CC (rpn in connectors/microbrute.c).
func (b *Backend) SendRPN(ch, paramMSB, paramLSB, valueMSB byte) error {
	if err := b.SendController(ch, 101, paramMSB); err != nil {
		return err
	}
	if err := b.SendController(ch, 100, paramLSB); err != nil {
		return err
	}
	return b.SendController(ch, 6, valueMSB)
}

func (b *Backend) sendShort(status byte, d1 byte, d2 byte, twoBytes bool) error {
	msg := []byte{status, d1}
	if twoBytes {
		msg = append(msg, d2)
	}
	transfer := NewSysExTransfer(0)
	_, err := b.port.TxRaw(msg, transfer)
	transfer.finish(err)
	return err
}
