package elektroid

import (
	"context"
	"fmt"
	"hash/crc32"
)

// dataBlockSize bounds one READ_PARTIAL/WRITE_PARTIAL payload, matching
// DATA_TRANSF_BLOCK_BYTES in connector.c.
const dataBlockSize = 0x2000

// crc32Seed is the initial register value connector_upload_datum's CRC32
// check starts from (0xFFFFFFFF), not Go's zero-valued default.
const crc32Seed = 0xFFFFFFFF

func crc32Of(data []byte) uint32 {
	return crc32.Update(crc32Seed, crc32.IEEETable, data)
}

// DownloadDatum reads a structured data record at remotePath via
// OPEN_READ/READ_PARTIAL/CLOSE_READ, reporting per-mille progress and
// honoring the first-reply zero-size quirk: a READ_PARTIAL reply with a
// zero data_size adds no bytes and its status is taken as 0 for progress;
// reading continues until a reply sets the last flag (the original's
// "first read may be empty" case in connector_download_datum).
func DownloadDatum(ctx context.Context, b *Backend, remotePath string, progress ProgressFunc) ([]byte, error) {
	pathArgs, err := fsPathArgs(remotePath)
	if err != nil {
		return nil, err
	}
	chunkField := make([]byte, 4)
	putBE32(chunkField, dataBlockSize)
	openArgs := append(append(append([]byte{}, pathArgs...), chunkField...), 1) // compression=1

	reply, err := b.Request(ctx, opDataOpenRead, openArgs, DefaultSysExTimeoutMS, false)
	if err != nil {
		return nil, err
	}
	if err := checkMsgStatus(reply); err != nil {
		return nil, err
	}
	if len(reply) < 10 {
		return nil, fmt.Errorf("%w: open-read reply too short", ErrProtocol)
	}
	jobID := reply[6:10]

	var data []byte
	seq := uint32(0)
	for {
		args := make([]byte, 0, 8)
		args = append(args, jobID...)
		seqField := make([]byte, 4)
		putBE32(seqField, seq)
		args = append(args, seqField...)

		block, err := b.Request(ctx, opDataReadBlock, args, DefaultSysExTimeoutMS, false)
		if err != nil {
			_, _ = b.Request(ctx, opDataCloseRead, jobID, GuessTimeoutMS, false)
			return nil, err
		}
		if err := checkMsgStatus(block); err != nil {
			_, _ = b.Request(ctx, opDataCloseRead, jobID, GuessTimeoutMS, false)
			return nil, err
		}
		if len(block) < 27 {
			_, _ = b.Request(ctx, opDataCloseRead, jobID, GuessTimeoutMS, false)
			return nil, fmt.Errorf("%w: read-partial reply too short", ErrProtocol)
		}
		status := getBE32(block[14:18])
		last := block[18] != 0
		dataSize := getBE32(block[23:27])

		if dataSize == 0 {
			// The first reply may carry a zero data_size with the rest of
			// its fields unset; treat status as 0 rather than whatever
			// garbage is in block[14:18].
			status = 0
		} else {
			payload := block[27:]
			if uint32(len(payload)) < dataSize {
				_, _ = b.Request(ctx, opDataCloseRead, jobID, GuessTimeoutMS, false)
				return nil, fmt.Errorf("%w: read-partial short payload", ErrProtocol)
			}
			data = append(data, payload[:dataSize]...)
		}
		seq++

		frac := float64(status) / 1000
		if frac > 1 {
			frac = 1
		}
		if progress != nil && !progress(frac, "downloading data") {
			_, _ = b.Request(ctx, opDataCloseRead, jobID, GuessTimeoutMS, false)
			return nil, ErrCancelled
		}
		if last {
			break
		}
	}

	closeReply, err := b.Request(ctx, opDataCloseRead, jobID, DefaultSysExTimeoutMS, false)
	if err != nil {
		return nil, err
	}
	if err := checkMsgStatus(closeReply); err != nil {
		return nil, err
	}
	return data, nil
}

// UploadDatum writes localData to remotePath via
// OPEN_WRITE/WRITE_PARTIAL/CLOSE_WRITE, one dataBlockSize chunk per
// WRITE_PARTIAL, each carrying its CRC32 and declared size; the device's
// reply echoes an asize that must equal the size we sent, or the upload
// is aborted as a protocol error (connector_upload_datum's asize check).
func UploadDatum(ctx context.Context, b *Backend, localData []byte, remotePath string, progress ProgressFunc) error {
	pathArgs, err := fsPathArgs(remotePath)
	if err != nil {
		return err
	}
	sizeField := make([]byte, 4)
	putBE32(sizeField, uint32(len(localData)))
	openArgs := append(append([]byte{}, sizeField...), pathArgs...)

	reply, err := b.Request(ctx, opDataOpenWrite, openArgs, DefaultSysExTimeoutMS, false)
	if err != nil {
		return err
	}
	if err := checkMsgStatus(reply); err != nil {
		return err
	}
	if len(reply) < 10 {
		return fmt.Errorf("%w: open-write reply too short", ErrProtocol)
	}
	jobID := reply[6:10]

	seq := uint32(0)
	offset := 0
	for offset < len(localData) {
		end := offset + dataBlockSize
		if end > len(localData) {
			end = len(localData)
		}
		chunk := localData[offset:end]

		args := make([]byte, 0, 16+len(chunk))
		args = append(args, jobID...)
		seqField := make([]byte, 4)
		putBE32(seqField, seq)
		args = append(args, seqField...)
		crcField := make([]byte, 4)
		putBE32(crcField, crc32Of(chunk))
		args = append(args, crcField...)
		lenField := make([]byte, 4)
		putBE32(lenField, uint32(len(chunk)))
		args = append(args, lenField...)
		args = append(args, chunk...)

		ackReply, err := b.Request(ctx, opDataWriteBlock, args, DefaultSysExTimeoutMS, false)
		if err != nil {
			_, _ = b.Request(ctx, opDataCloseWrite, jobID, GuessTimeoutMS, false)
			return err
		}
		if err := checkMsgStatus(ackReply); err != nil {
			_, _ = b.Request(ctx, opDataCloseWrite, jobID, GuessTimeoutMS, false)
			return err
		}
		if len(ackReply) < 18 {
			_, _ = b.Request(ctx, opDataCloseWrite, jobID, GuessTimeoutMS, false)
			return fmt.Errorf("%w: write-partial reply too short", ErrProtocol)
		}
		// total is the device's cumulative byte count; a mismatch against
		// our own running total is only logged, never fatal here — the
		// device is the source of truth for what it actually wrote.
		total := getBE32(ackReply[14:18])
		seq++
		offset = end
		if total != uint32(offset) {
			logger.Warn("data upload byte count mismatch", "device", total, "expected", offset)
		}

		if progress != nil && len(localData) > 0 {
			if !progress(float64(offset)/float64(len(localData)), "uploading data") {
				_, _ = b.Request(ctx, opDataCloseWrite, jobID, GuessTimeoutMS, false)
				return ErrCancelled
			}
		}
	}

	closeArgs := make([]byte, 0, 8)
	closeArgs = append(closeArgs, jobID...)
	sizeField2 := make([]byte, 4)
	putBE32(sizeField2, uint32(len(localData)))
	closeArgs = append(closeArgs, sizeField2...)

	closeReply, err := b.Request(ctx, opDataCloseWrite, closeArgs, DefaultSysExTimeoutMS, false)
	if err != nil {
		return err
	}
	if err := checkMsgStatus(closeReply); err != nil {
		return err
	}
	if len(closeReply) < 14 {
		return fmt.Errorf("%w: close-write reply too short", ErrProtocol)
	}
	// Unlike the per-block total, a close-time size mismatch is fatal:
	// it means the device's view of the finished record disagrees with
	// what the caller asked to write.
	asize := getBE32(closeReply[10:14])
	if asize != uint32(len(localData)) {
		return fmt.Errorf("%w: device closed record at %d bytes, wanted %d", ErrProtocol, asize, len(localData))
	}
	return nil
}

// dataOpCommon runs one request/reply round trip for a path-only or
// src/dst-only data op and gates the result on the reply's status byte,
// mirroring connector_path_common/connector_src_dst_common's "Response:
// x, x, x, x, 0xX0, [0 (error), 1 (success)]" convention.
func dataOpCommon(ctx context.Context, b *Backend, op byte, args []byte) error {
	reply, err := b.Request(ctx, op, args, DefaultSysExTimeoutMS, false)
	if err != nil {
		return err
	}
	return checkMsgStatus(reply)
}

func dataClear(ctx context.Context, b *Backend, path string) error {
	args, err := fsPathArgs(path)
	if err != nil {
		return err
	}
	return dataOpCommon(ctx, b, opDataClear, args)
}

func dataMove(ctx context.Context, b *Backend, srcPath, dstPath string) error {
	args, err := fsPathArgs(srcPath, dstPath)
	if err != nil {
		return err
	}
	return dataOpCommon(ctx, b, opDataMove, args)
}

func dataCopy(ctx context.Context, b *Backend, srcPath, dstPath string) error {
	args, err := fsPathArgs(srcPath, dstPath)
	if err != nil {
		return err
	}
	return dataOpCommon(ctx, b, opDataCopy, args)
}

func dataSwap(ctx context.Context, b *Backend, pathA, pathB string) error {
	args, err := fsPathArgs(pathA, pathB)
	if err != nil {
		return err
	}
	return dataOpCommon(ctx, b, opDataSwap, args)
}

// DataList issues opDataList and returns the reply's record bytes from
// body offset 5 on, unparsed, for callers that parse them themselves.
// readDataDir parses the same reply into Items. Grounded on
// connector_new_msg_list.
func DataList(ctx context.Context, b *Backend, path string) ([]byte, error) {
	args, err := listArgs(path)
	if err != nil {
		return nil, err
	}
	reply, err := b.Request(ctx, opDataList, args, DefaultSysExTimeoutMS, true)
	if err != nil {
		return nil, err
	}
	if err := checkMsgStatus(reply); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotDir, err)
	}
	if len(reply) < 5 {
		return nil, fmt.Errorf("%w: list reply too short", ErrProtocol)
	}
	return reply[5:], nil
}
