package elektroid

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// CancelButton wires a GPIO input line to a SysExTransfer's Cancel, for
// headless installs (e.g. a Raspberry Pi bridge) where there is no
// keyboard to interrupt a stuck transfer. Adapted from the teacher's PTT
// GPIO line handling, repurposed here as a read-only cancel input rather
// than a transmit-enable output.
type CancelButton struct {
	line *gpiocdev.Line
}

// NewCancelButton opens chip/line as an input and calls onPress (typically
// transfer.Cancel) on each falling edge, matching an active-low push
// button pulled up by default.
func NewCancelButton(chip string, line int, onPress func()) (*CancelButton, error) {
	l, err := gpiocdev.RequestLine(chip, line,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type == gpiocdev.FallingEdge {
				onPress()
			}
		}),
		gpiocdev.WithBothEdges,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: requesting %s line %d: %v", ErrIO, chip, line, err)
	}
	return &CancelButton{line: l}, nil
}

// Close releases the GPIO line.
func (c *CancelButton) Close() error {
	return c.line.Close()
}
