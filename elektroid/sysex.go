package elektroid

import (
	"fmt"
	"sync"
	"time"
)

// transferStatus mirrors the sysex_transfer.status enum driving the
// connector_rx_sysex state machine: a transfer starts WAITING for the
// first byte of a message, moves to RECEIVING once the 0xF0 has arrived,
// and settles in FINISHED exactly once, however it ends.
type transferStatus int

const (
	transferWaiting transferStatus = iota
	transferSending
	transferReceiving
	transferFinished
)

// SysExTransfer is the cancellable, timed context for one SysEx exchange.
// Cancellation is cooperative: Cancel only clears the active flag, and
// RxSysex/TxSysex notice it at their next poll tick or chunk boundary
// (§4.2, §8 scenario 4). All fields are guarded by mu except raw, which a
// caller must not touch concurrently with an in-flight Rx/Tx call.
type SysExTransfer struct {
	mu      sync.Mutex
	active  bool
	status  transferStatus
	timeout int // ms; 0 means no timeout (waits for explicit cancel only)
	err     error

	raw []byte
}

// NewSysExTransfer starts a transfer armed for up to timeoutMS of elapsed
// poll time while WAITING or RECEIVING. A timeoutMS of 0 disables the timeout, relying
// solely on cancellation.
func NewSysExTransfer(timeoutMS int) *SysExTransfer {
	return &SysExTransfer{active: true, status: transferWaiting, timeout: timeoutMS}
}

// Active reports whether the transfer has not been cancelled and has not
// reached a terminal state.
func (t *SysExTransfer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Cancel clears the active flag. Safe to call from any goroutine,
// including a GPIO button handler (gpio_cancel.go) racing an in-flight Rx.
func (t *SysExTransfer) Cancel() {
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
}

// Status reports the current phase of the transfer.
func (t *SysExTransfer) Status() transferStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *SysExTransfer) setStatus(s transferStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// finish marks the transfer terminal: active clears and status becomes
// FINISHED together, satisfying the §8 invariant that every transfer ends
// in exactly that combined state, however it got there.
func (t *SysExTransfer) finish(err error) {
	t.mu.Lock()
	t.active = false
	t.status = transferFinished
	t.err = err
	t.mu.Unlock()
}

// timeoutExceeded reports whether elapsedMS has passed the transfer's
// budget. Time counts while status is WAITING or RECEIVING, so a request
// that never gets a first reply byte times out too; a SENDING or FINISHED
// transfer never reports a timeout. Mirrors BE_POLL_TIMEOUT_MS accounting
// in connector_rx_raw.
func (t *SysExTransfer) timeoutExceeded(elapsedMS int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timeout <= 0 {
		return false
	}
	if t.status != transferReceiving && t.status != transferWaiting {
		return false
	}
	return elapsedMS >= t.timeout
}

// TxSysex frames body behind header and writes it to the port, then marks
// the transfer finished. Grounded on connector_tx_sysex.
func TxSysex(p *MIDIPort, header VendorHeader, seq uint16, body []byte, transfer *SysExTransfer) error {
	transfer.setStatus(transferSending)
	sysex := frameMessage(header, seq, body)

	n, err := p.TxRaw(sysex, transfer)
	if err != nil {
		transfer.finish(err)
		return err
	}
	if n < len(sysex) {
		err := fmt.Errorf("%w: cancelled mid-send to %s", ErrCancelled, p.name)
		transfer.finish(err)
		return err
	}
	transfer.finish(nil)
	return nil
}

// RxSysex reads one complete SysEx message (0xF0 ... 0xF7), accumulating
// across as many RxRaw calls as needed and carrying any residual bytes
// past the terminator forward in p.rxBuf/p.rxLen for the next call, the
// same way backend->buffer survives across connector_rx_sysex
// invocations. It returns the framed bytes including the leading 0xF0 and
// trailing 0xF7, ready for unframeMessage.
func RxSysex(p *MIDIPort, transfer *SysExTransfer) ([]byte, error) {
	transfer.setStatus(transferWaiting)
	scratch := make([]byte, scratchBufLen)

	msg := make([]byte, 0, 256)
	started := false

	// Any bytes left over from a previous call may already contain a
	// complete or partial message; drain them before polling the port.
	pending := append([]byte(nil), p.rxBuf[:p.rxLen]...)
	p.rxLen = 0

	for {
		for len(pending) > 0 {
			b := pending[0]
			pending = pending[1:]

			if !started {
				if b != sysexStart {
					continue
				}
				started = true
				transfer.setStatus(transferReceiving)
			}
			msg = append(msg, b)
			if b == sysexEnd {
				p.rxBuf = append(p.rxBuf[:0], pending...)
				p.rxLen = len(p.rxBuf)
				transfer.finish(nil)
				return msg, nil
			}
		}

		if !transfer.Active() {
			transfer.finish(fmt.Errorf("%w: rx cancelled on %s", ErrCancelled, p.name))
			return nil, transfer.err
		}

		n, err := p.RxRaw(scratch, transfer)
		if err != nil {
			transfer.finish(err)
			return nil, err
		}
		if n == noDataAvail {
			cause := ErrTimeout
			if !transfer.Active() {
				cause = ErrCancelled
			}
			err := fmt.Errorf("%w: no data from %s", cause, p.name)
			transfer.finish(err)
			return nil, err
		}
		pending = scratch[:n]
	}
}

// transferHandle lets a caller cancel whichever SysExTransfer is
// currently driving a TxAndRxSysex call without needing to know whether
// it is mid-send or mid-receive at the moment Cancel is called. The zero
// value is safe to use and Cancel is a no-op before the first transfer is
// registered or after the call has already finished.
type transferHandle struct {
	mu      sync.Mutex
	current *SysExTransfer
}

func (h *transferHandle) set(t *SysExTransfer) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.current = t
	h.mu.Unlock()
}

func (h *transferHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	t := h.current
	h.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

// TxAndRxSysex sends body and waits for the reply, retrying the receive
// once if the reply's vendor header does not match — a transient glitch
// connector_rx tolerates by discarding the stray message and reading
// again. batch is accepted but not used: every call returns exactly one
// SysEx message, and replies spread over several messages are not
// concatenated. handle
// may be nil; when given, it is pointed at whichever transfer is
// currently active so a caller racing a context against this call can
// cancel the in-flight port I/O instead of abandoning it. Drains any
// bytes left over from a previous exchange before transmitting, matching
// connector_rx_drain at the top of connector_tx_and_rx.
func TxAndRxSysex(p *MIDIPort, header VendorHeader, seq uint16, body []byte, timeoutMS int, batch bool, handle *transferHandle) ([]byte, error) {
	p.Drain()

	tx := NewSysExTransfer(timeoutMS)
	handle.set(tx)
	if err := TxSysex(p, header, seq, body, tx); err != nil {
		return nil, err
	}

	rx := NewSysExTransfer(timeoutMS)
	handle.set(rx)

	var last error
	for attempt := 0; attempt < 2; attempt++ {
		sysex, err := RxSysex(p, rx)
		if err != nil {
			return nil, err
		}
		reply, err := unframeMessage(header, sysex)
		if err == nil {
			return reply, nil
		}
		last = err
		rx = NewSysExTransfer(timeoutMS)
		handle.set(rx)
	}
	return nil, last
}

// pulse reports whether less than budgetMS of wall-clock time has passed
// since since, for budgeting time across several TxAndRxSysex round trips.
// Nothing in this package calls it.
func pulse(since time.Time, budgetMS int) bool {
	return int(time.Since(since).Milliseconds()) < budgetMS
}
