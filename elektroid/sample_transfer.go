package elektroid

import (
	"context"
	"fmt"
)

// sampleBlockSize is the payload size of one OPEN_WRITER/WRITE_BLOCK
// exchange, matching BE_FS_SAMPLES_BLOCK_SIZE (0x2000) in connector.c.
const sampleBlockSize = 0x2000

// samplePrologueLen is the size of the writer-open metadata block:
// FS_SAMPLE_WRITE_FILE_EXTRA_DATA_1ST in the original, carrying sample
// rate, default note and total size ahead of the first data block.
const samplePrologueLen = 64

const (
	sampleRate48k  = 0xBB80
	defaultNoteMid = 0x7F
)

// samplePrologue builds the 64-byte metadata block the first WRITE_BLOCK
// of an upload prefixes its body with, mirroring
// FS_SAMPLE_WRITE_FILE_EXTRA_DATA_1ST's static template (sample rate at
// offset 6-7, default note at offset 16) and then, like
// connector_new_msg_write_file_blk, overwriting offset 4 with the total
// sample size (N) and offset 16 with (N/2)-1 — the size write at offset 4
// runs 4 bytes wide and clobbers the template's rate bytes at 6-7, which
// matches the original's own memcpy ordering byte-for-byte.
func samplePrologue(size uint32) []byte {
	p := make([]byte, samplePrologueLen)
	putBE16(p[6:8], sampleRate48k)
	p[16] = defaultNoteMid
	putBE32(p[4:8], size)
	putBE32(p[16:20], size/2-1)
	return p
}

// UploadSample writes localData to remotePath in sampleBlockSize chunks
// via OPEN_WRITER/WRITE_BLOCK/CLOSE_WRITER. OPEN_WRITER is given the
// total size including the 64-byte prologue; the prologue itself is sent
// only once, prefixed to the first WRITE_BLOCK's body. Grounded on
// connector_new_msg_open_file_write/connector_new_msg_write_file_blk/
// connector_new_msg_close_file_write.
func UploadSample(ctx context.Context, b *Backend, localData []byte, remotePath string, progress ProgressFunc) error {
	pathArgs, err := fsPathArgs(remotePath)
	if err != nil {
		return err
	}
	total := uint32(len(localData)) + samplePrologueLen
	sizeField := make([]byte, 4)
	putBE32(sizeField, total)
	openArgs := append(append([]byte{}, sizeField...), pathArgs...)

	reply, err := b.Request(ctx, opFSOpenWriter, openArgs, DefaultSysExTimeoutMS, false)
	if err != nil {
		return err
	}
	if err := checkMsgStatus(reply); err != nil {
		return err
	}
	if len(reply) < 10 {
		return fmt.Errorf("%w: open-writer reply too short", ErrProtocol)
	}
	handle := reply[6:10]

	maxFirstChunk := sampleBlockSize - samplePrologueLen
	for offset, blockIndex := 0, 0; offset < len(localData); blockIndex++ {
		max := sampleBlockSize
		if blockIndex == 0 {
			max = maxFirstChunk
		}
		end := offset + max
		if end > len(localData) {
			end = len(localData)
		}
		chunk := localData[offset:end]

		body := chunk
		if blockIndex == 0 {
			body = append(samplePrologue(uint32(len(localData))), chunk...)
		}

		block := make([]byte, 0, 12+len(body))
		block = append(block, handle...)
		consumedField := make([]byte, 4)
		putBE32(consumedField, uint32(len(body)))
		block = append(block, consumedField...)
		startField := make([]byte, 4)
		putBE32(startField, uint32(sampleBlockSize*blockIndex))
		block = append(block, startField...)
		block = append(block, body...)

		ackReply, err := b.Request(ctx, opFSWriteBlock, block, DefaultSysExTimeoutMS, false)
		if err != nil {
			_, _ = b.Request(ctx, opFSCloseWriter, handle, GuessTimeoutMS, false)
			return err
		}
		if err := checkMsgStatus(ackReply); err != nil {
			_, _ = b.Request(ctx, opFSCloseWriter, handle, GuessTimeoutMS, false)
			return err
		}
		if progress != nil && !progress(float64(end)/float64(len(localData)), "uploading sample") {
			_, _ = b.Request(ctx, opFSCloseWriter, handle, GuessTimeoutMS, false)
			return ErrCancelled
		}
		offset = end
	}

	closeArgs := make([]byte, 0, 8)
	closeArgs = append(closeArgs, handle...)
	totalField := make([]byte, 4)
	putBE32(totalField, total)
	closeArgs = append(closeArgs, totalField...)
	closeReply, err := b.Request(ctx, opFSCloseWriter, closeArgs, DefaultSysExTimeoutMS, false)
	if err != nil {
		return err
	}
	return checkMsgStatus(closeReply)
}

// DownloadSample reads remotePath via OPEN_READER/READ_BLOCK/CLOSE_READER,
// returning the reassembled bytes with the 64-byte prologue stripped off
// the first block's payload. Grounded on connector_download_sample and
// connector_new_msg_read_file_blk, simplified to this connector's usual
// "payload starts at reply offset 6" convention rather than replicating
// the original's read-block-specific 22-byte sub-header.
func DownloadSample(ctx context.Context, b *Backend, remotePath string, progress ProgressFunc) ([]byte, error) {
	pathArgs, err := fsPathArgs(remotePath)
	if err != nil {
		return nil, err
	}
	reply, err := b.Request(ctx, opFSOpenReader, pathArgs, DefaultSysExTimeoutMS, false)
	if err != nil {
		return nil, err
	}
	if err := checkMsgStatus(reply); err != nil {
		return nil, err
	}
	if len(reply) < 14 {
		return nil, fmt.Errorf("%w: open-reader reply too short", ErrProtocol)
	}
	handle := reply[6:10]
	// wireTotal counts the 64-byte prologue the device prefixes to the
	// first block; data (the caller-facing PCM) does not.
	wireTotal := getBE32(reply[10:14])

	data := make([]byte, 0, wireTotal)
	received := uint32(0)
	first := true
	for received < wireTotal {
		want := uint32(sampleBlockSize)
		if remain := wireTotal - received; remain < want {
			want = remain
		}
		args := make([]byte, 0, 12)
		args = append(args, handle...)
		sizeField := make([]byte, 4)
		putBE32(sizeField, want)
		args = append(args, sizeField...)
		startField := make([]byte, 4)
		putBE32(startField, received)
		args = append(args, startField...)

		block, err := b.Request(ctx, opFSReadBlock, args, DefaultSysExTimeoutMS, false)
		if err != nil {
			_, _ = b.Request(ctx, opFSCloseReader, handle, GuessTimeoutMS, false)
			return nil, err
		}
		if err := checkMsgStatus(block); err != nil {
			_, _ = b.Request(ctx, opFSCloseReader, handle, GuessTimeoutMS, false)
			return nil, err
		}
		payload := block[6:]
		if uint32(len(payload)) < want {
			_, _ = b.Request(ctx, opFSCloseReader, handle, GuessTimeoutMS, false)
			return nil, fmt.Errorf("%w: read-block short payload", ErrProtocol)
		}
		payload = payload[:want]
		if first {
			if len(payload) < samplePrologueLen {
				_, _ = b.Request(ctx, opFSCloseReader, handle, GuessTimeoutMS, false)
				return nil, fmt.Errorf("%w: read-block missing prologue", ErrProtocol)
			}
			payload = payload[samplePrologueLen:]
			first = false
		}
		data = append(data, payload...)
		received += want

		if progress != nil && !progress(float64(received)/float64(wireTotal), "downloading sample") {
			_, _ = b.Request(ctx, opFSCloseReader, handle, GuessTimeoutMS, false)
			return nil, ErrCancelled
		}
	}

	closeReply, err := b.Request(ctx, opFSCloseReader, handle, DefaultSysExTimeoutMS, false)
	if err != nil {
		return nil, err
	}
	if err := checkMsgStatus(closeReply); err != nil {
		return nil, err
	}
	return data, nil
}
