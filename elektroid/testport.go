package elektroid

import (
	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// newLoopbackPair wires two MIDIPorts over a pty pair: writes to one end
// show up for reading on the other, giving sysex_test.go and
// transfer_test.go a real file descriptor to poll(2) against instead of an
// in-memory fake, the same way the teacher's kiss.go leans on pty.Open for
// its loopback tests. *os.File already satisfies rawIO (Read/Write/Close
// plus Fd), so no adapter type is needed.
func newLoopbackPair() (local *MIDIPort, remote *MIDIPort, closeFn func(), err error) {
	p, t, err := pty.Open()
	if err != nil {
		return nil, nil, nil, err
	}
	// A new pty starts in cooked mode (line buffering, echo, CR/LF
	// translation); switch it to raw so bytes pass through unchanged.
	fd := int(t.Fd())
	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err == nil {
		tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
		tio.Oflag &^= unix.OPOST
		tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
		tio.Cflag = tio.Cflag&^(unix.CSIZE|unix.PARENB) | unix.CS8
		err = unix.IoctlSetTermios(fd, unix.TCSETS, tio)
	}
	if err != nil {
		p.Close()
		t.Close()
		return nil, nil, nil, err
	}
	local = newMIDIPort("loopback-local", p)
	remote = newMIDIPort("loopback-remote", t)
	closeFn = func() {
		local.Close()
		remote.Close()
	}
	return local, remote, closeFn, nil
}
