package elektroid

/*
Purpose: Open/close a bidirectional raw-MIDI endpoint; non-blocking
receive with poll; synchronous send (§4.1).

The ALSA rawmidi character device behaves, for our purposes, like the
teacher's serial port: a file descriptor opened once, written to
synchronously, and read from via a short poll loop rather than a blocking
read so that cancellation and per-transfer timeouts can be observed
promptly. We reuse pkg/term the same way serial_port.go does, and
golang.org/x/sys/unix for the poll(2) loop connector_rx_raw performs in
the original implementation.
*/

import (
	"fmt"
	"io"

	"github.com/pkg/term"
	"golang.org/x/sys/unix"
)

const (
	pollTimeoutMS = 20
	scratchBufLen = 64 * 1024
	maxTxChunkLen = 4 * 1024
	maxSysexLen   = 32 * 1024
	ringBufferLen = 256 * 1024
	noDataAvail   = -1
)

// rawIO is satisfied by both a real character device (via pkg/term) and a
// loopback pty pair used in tests (testport.go).
type rawIO interface {
	io.ReadWriteCloser
	Fd() uintptr
}

// MIDIPort is a single bidirectional raw-MIDI endpoint.
type MIDIPort struct {
	name string
	conn rawIO

	// rxBuf/rxLen hold bytes already read from the device but not yet
	// consumed by RxSysex across calls, mirroring backend->buffer /
	// backend->rx_len in the original.
	rxBuf []byte
	rxLen int

	log interface {
		Debug(msg string, kv ...any)
	}
}

// OpenMIDIPort opens devnode (e.g. "/dev/snd/midiC1D0") for synchronous
// send / non-blocking-polled receive.
func OpenMIDIPort(devnode string) (*MIDIPort, error) {
	t, err := term.Open(devnode, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, devnode, err)
	}
	return newMIDIPort(devnode, t), nil
}

func newMIDIPort(name string, conn rawIO) *MIDIPort {
	return &MIDIPort{
		name:  name,
		conn:  conn,
		rxBuf: make([]byte, scratchBufLen),
		log:   componentLogger("midiport"),
	}
}

// Close releases the underlying device. Safe to call once.
func (p *MIDIPort) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// Drain discards any buffered, unread receive bytes.
func (p *MIDIPort) Drain() {
	p.rxLen = 0
}

// Read and Write let a MIDIPort stand in for io.ReadWriter where a plain
// byte relay is wanted (the network bridge's io.Copy in
// cmd/elektroid-bridged) rather than a framed SysEx exchange: they wrap
// RxRaw/TxRaw with an internal transfer that never times out and is only
// cancelled by closing the port.
func (p *MIDIPort) Read(buf []byte) (int, error) {
	n, err := p.RxRaw(buf, p.relayTransfer())
	if n == noDataAvail {
		return 0, io.EOF
	}
	return n, err
}

func (p *MIDIPort) Write(buf []byte) (int, error) {
	return p.TxRaw(buf, p.relayTransfer())
}

func (p *MIDIPort) relayTransfer() *SysExTransfer {
	return NewSysExTransfer(0)
}

// TxRaw writes data to the port in chunks of at most maxTxChunkLen bytes,
// checking transfer.Active() between chunks so a cancel can stop an
// in-progress send. It returns the number of bytes written.
func (p *MIDIPort) TxRaw(data []byte, transfer *SysExTransfer) (int, error) {
	if p.conn == nil {
		return 0, fmt.Errorf("%w: port is closed", ErrIO)
	}

	total := 0
	for total < len(data) && transfer.Active() {
		end := total + maxTxChunkLen
		if end > len(data) {
			end = len(data)
		}
		n, err := p.conn.Write(data[total:end])
		if err != nil {
			return total, fmt.Errorf("%w: writing to %s: %v", ErrIO, p.name, err)
		}
		total += n
	}
	return total, nil
}

// isRealTimeOnly reports whether buf contains only MIDI System Real-Time
// bytes (0xF8-0xFF), which must be discarded wherever they interleave with
// a SysEx stream.
func isRealTimeOnly(buf []byte) bool {
	for _, b := range buf {
		if b < 0xF8 {
			return false
		}
	}
	return true
}

// RxRaw polls the port for input with a ~20 ms tick, discarding interleaved
// System Real-Time bytes, honouring transfer cancellation and its timeout
// budget (counted while status is WAITING or RECEIVING). It returns noDataAvail
// when the transfer was cancelled or the timeout elapsed.
func (p *MIDIPort) RxRaw(buf []byte, transfer *SysExTransfer) (int, error) {
	if p.conn == nil {
		return 0, fmt.Errorf("%w: port is closed", ErrIO)
	}

	totalTime := 0
	fds := []unix.PollFd{{Fd: int32(p.conn.Fd()), Events: unix.POLLIN}}

	for {
		if !transfer.Active() {
			return noDataAvail, nil
		}

		n, err := unix.Poll(fds, pollTimeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, fmt.Errorf("%w: polling %s: %v", ErrIO, p.name, err)
		}

		if n == 0 {
			totalTime += pollTimeoutMS
			if transfer.timeoutExceeded(totalTime) {
				p.log.Debug("rx timeout", "port", p.name)
				return noDataAvail, nil
			}
			continue
		}

		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
			return noDataAvail, nil
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		rxLen, err := p.conn.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("%w: reading %s: %v", ErrIO, p.name, err)
		}
		if rxLen == 0 {
			continue
		}
		if isRealTimeOnly(buf[:rxLen]) {
			continue
		}
		// Real-Time bytes interleaved with other data are dropped too.
		kept := 0
		for _, c := range buf[:rxLen] {
			if c < 0xF8 {
				buf[kept] = c
				kept++
			}
		}
		return kept, nil
	}
}
