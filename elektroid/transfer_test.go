package elektroid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeServer drives a loopback backend's remote end, answering requests
// with scripted replies keyed by opcode. It lets sample/data/OS-upgrade
// transfer logic be tested without a real device. Handlers return the
// reply body's args only (everything from body offset 5 on) — the status
// byte at offset 5 and any payload from offset 6 on are the handler's
// responsibility to lay out, matching the real wire convention.
type fakeServer struct {
	port    *MIDIPort
	header  VendorHeader
	handler func(opcode byte, args []byte) []byte
}

func newFakeServer(t *testing.T, handler func(opcode byte, args []byte) []byte) (*Backend, func()) {
	t.Helper()
	local, remote, closeFn, err := newLoopbackPair()
	require.NoError(t, err)

	srv := &fakeServer{port: remote, header: testHeader, handler: handler}
	stop := make(chan struct{})
	go srv.run(stop)

	b := &Backend{port: local, header: testHeader}
	return b, func() {
		close(stop)
		closeFn()
	}
}

func (s *fakeServer) run(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		rx := NewSysExTransfer(200)
		sysex, err := RxSysex(s.port, rx)
		if err != nil {
			continue
		}
		body, err := unframeMessage(s.header, sysex)
		if err != nil {
			continue
		}
		seq := getBE16(body[:2])
		opcode := body[4]
		args := body[5:]

		replyArgs := s.handler(opcode, args)
		tx := NewSysExTransfer(200)
		_ = TxSysex(s.port, s.header, seq, newMessageBody(opcode, replyArgs...), tx)
	}
}

// statusOK is the generic "succeeded" byte every reply carries at body
// offset 5, ahead of any opcode-specific payload from offset 6 on.
const statusOK = 1

func TestUploadDownloadSample_RoundTrip(t *testing.T) {
	store := map[string][]byte{}
	var handle [4]byte
	handle[3] = 1

	b, closeFn := newFakeServer(t, func(opcode byte, args []byte) []byte {
		switch opcode {
		case opFSOpenWriter:
			reply := []byte{statusOK}
			reply = append(reply, handle[:]...)
			return reply
		case opFSWriteBlock:
			consumed := getBE32(args[4:8])
			body := args[12 : 12+consumed]
			store["x"] = append(store["x"], body...)
			return []byte{statusOK}
		case opFSCloseWriter:
			return []byte{statusOK}
		case opFSOpenReader:
			reply := []byte{statusOK}
			reply = append(reply, handle[:]...)
			sizeField := make([]byte, 4)
			putBE32(sizeField, uint32(len(store["x"])))
			reply = append(reply, sizeField...)
			return reply
		case opFSReadBlock:
			want := getBE32(args[4:8])
			start := getBE32(args[8:12])
			data := store["x"]
			end := start + want
			if end > uint32(len(data)) {
				end = uint32(len(data))
			}
			reply := []byte{statusOK}
			reply = append(reply, data[start:end]...)
			return reply
		case opFSCloseReader:
			return []byte{statusOK}
		}
		return []byte{statusOK}
	})
	defer closeFn()

	payload := make([]byte, sampleBlockSize*2+17)
	for i := range payload {
		payload[i] = byte(i)
	}

	ctx := context.Background()
	require.NoError(t, UploadSample(ctx, b, payload, "x", nil))

	got, err := DownloadSample(ctx, b, "x", nil)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestUpgradeOS_AbortsOnErrorCode(t *testing.T) {
	calls := 0
	b, closeFn := newFakeServer(t, func(opcode byte, args []byte) []byte {
		switch opcode {
		case opOSUpgradeStart:
			return []byte{statusOK}
		case opOSUpgradeWrite:
			calls++
			reply := make([]byte, 5)
			if calls == 2 {
				reply[4] = 2 // error code
			} else {
				reply[4] = osProgressContinue
			}
			return reply
		}
		return nil
	})
	defer closeFn()

	image := make([]byte, osBlockSize*3)
	err := UpgradeOS(context.Background(), b, image, nil)
	require.ErrorIs(t, err, ErrProtocol)
	require.Equal(t, 2, calls)
}

func TestUpgradeOS_CompletesOnDoneCode(t *testing.T) {
	b, closeFn := newFakeServer(t, func(opcode byte, args []byte) []byte {
		switch opcode {
		case opOSUpgradeStart:
			return []byte{statusOK}
		case opOSUpgradeWrite:
			reply := make([]byte, 5)
			reply[4] = osProgressDone
			return reply
		}
		return nil
	})
	defer closeFn()

	image := make([]byte, osBlockSize)
	require.NoError(t, UpgradeOS(context.Background(), b, image, nil))
}
