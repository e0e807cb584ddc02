package elektroid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTxAndRxSysex_RoundTrip(t *testing.T) {
	local, remote, closeFn, err := newLoopbackPair()
	require.NoError(t, err)
	defer closeFn()

	go func() {
		tx := NewSysExTransfer(2000)
		rx := NewSysExTransfer(2000)
		sysex, err := RxSysex(remote, rx)
		if err != nil {
			return
		}
		reply, err := unframeMessage(testHeader, sysex)
		if err != nil {
			return
		}
		seq := getBE16(reply[:2])
		_ = TxSysex(remote, testHeader, seq, newMessageBody(0x02, 0x01), tx)
	}()

	reply, err := TxAndRxSysex(local, testHeader, 7, newMessageBody(0x01), 2000, false, nil)
	require.NoError(t, err)
	require.Equal(t, byte(0x02), reply[4])
	require.Equal(t, byte(0x01), reply[5])
}

func TestRxSysex_TerminalStateOnSuccess(t *testing.T) {
	local, remote, closeFn, err := newLoopbackPair()
	require.NoError(t, err)
	defer closeFn()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = remote.TxRaw(frameMessage(testHeader, 1, newMessageBody(0x01)), NewSysExTransfer(0))
	}()

	rx := NewSysExTransfer(2000)
	_, err = RxSysex(local, rx)
	require.NoError(t, err)
	require.False(t, rx.Active())
	require.Equal(t, transferFinished, rx.Status())
	<-done
}

func TestRxSysex_CancelStopsPromptly(t *testing.T) {
	local, _, closeFn, err := newLoopbackPair()
	require.NoError(t, err)
	defer closeFn()

	rx := NewSysExTransfer(0)
	go func() {
		time.Sleep(50 * time.Millisecond)
		rx.Cancel()
	}()

	start := time.Now()
	_, err = RxSysex(local, rx)
	require.ErrorIs(t, err, ErrCancelled)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.False(t, rx.Active())
	require.Equal(t, transferFinished, rx.Status())
}

func TestRxSysex_TimeoutCountsWhileWaiting(t *testing.T) {
	local, _, closeFn, err := newLoopbackPair()
	require.NoError(t, err)
	defer closeFn()

	rx := NewSysExTransfer(60)
	start := time.Now()
	_, err = RxSysex(local, rx)
	require.ErrorIs(t, err, ErrTimeout)
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
