package elektroid

import (
	"context"
	"fmt"
)

// osBlockSize bounds one OS_WRITE payload: BE_OS_UPGRADE_BLOCK_SIZE
// (0x800) in connector.c, smaller than the generic data channel's block
// size because the bootloader's receive buffer is limited.
const osBlockSize = 0x800

// OS upgrade progress codes returned in an OS_WRITE reply, grounded on the
// status byte connector_upgrade_os inspects after each block.
const (
	osProgressContinue = 0
	osProgressDone      = 1
)

// UpgradeOS flashes image to the device in osBlockSize blocks, each
// carrying a CRC32, over OS_START/OS_WRITE. A reply status of
// osProgressDone ends the transfer successfully even if bytes remain
// queued for some final housekeeping block the firmware performs
// internally; any status greater than osProgressDone aborts with
// ErrProtocol, matching connector_upgrade_os's "len(status) > 1 is
// fatal" rule. Cancellation (§8 scenario 4) is checked between blocks via
// progress's return value.
func UpgradeOS(ctx context.Context, b *Backend, image []byte, progress ProgressFunc) error {
	sizeField := make([]byte, 4)
	putBE32(sizeField, uint32(len(image)))
	if _, err := b.Request(ctx, opOSUpgradeStart, sizeField, DefaultSysExTimeoutMS, false); err != nil {
		return err
	}

	for offset := 0; offset < len(image); {
		end := offset + osBlockSize
		if end > len(image) {
			end = len(image)
		}
		chunk := image[offset:end]

		args := make([]byte, 0, 12+len(chunk))
		crcField := make([]byte, 4)
		putBE32(crcField, crc32Of(chunk))
		args = append(args, crcField...)
		lenField := make([]byte, 4)
		putBE32(lenField, uint32(len(chunk)))
		args = append(args, lenField...)
		offsetField := make([]byte, 4)
		putBE32(offsetField, uint32(offset))
		args = append(args, offsetField...)
		args = append(args, chunk...)

		reply, err := b.Request(ctx, opOSUpgradeWrite, args, DefaultSysExTimeoutMS, false)
		if err != nil {
			return err
		}
		if len(reply) < 10 {
			return fmt.Errorf("%w: os-write reply too short", ErrProtocol)
		}
		switch code := reply[9]; {
		case code == osProgressContinue:
			// fall through to next block
		case code == osProgressDone:
			return nil
		default:
			return fmt.Errorf("%w: device reported upgrade error code %d", ErrProtocol, code)
		}

		offset = end
		if progress != nil && !progress(float64(offset)/float64(len(image)), "upgrading firmware") {
			return ErrCancelled
		}
	}

	return nil
}
