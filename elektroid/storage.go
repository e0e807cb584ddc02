package elektroid

import (
	"context"
	"fmt"
)

// Storage capability flags, matching STORAGE_* in connector.c's device
// descriptor table.
const (
	StoragePlusDrive = 1 << iota
	StorageRAM
)

// StorageStats is the reply to opStorageInfo: free/total bytes on one
// storage location, plus the percent-used figure the original precomputes
// from them.
type StorageStats struct {
	BytesFree  uint64
	BytesTotal uint64
	PercentUse float64
}

// GetStorageStats issues opStorageInfo for storageKind (StoragePlusDrive or
// StorageRAM, not a path — connector_get_storage_stats takes the storage
// location as a single selector byte) and computes PercentUse the same way
// the original does: (total-free)*100/total. Grounded on connector.c's
// 64-bit big-endian bfree at offset 6 and bsize at offset 14 of the reply
// payload.
func GetStorageStats(ctx context.Context, b *Backend, storageKind byte) (*StorageStats, error) {
	reply, err := b.Request(ctx, opStorageInfo, []byte{storageKind}, DefaultSysExTimeoutMS, false)
	if err != nil {
		return nil, err
	}
	if err := checkMsgStatus(reply); err != nil {
		return nil, err
	}
	if len(reply) < 22 {
		return nil, fmt.Errorf("%w: storage info reply too short", ErrProtocol)
	}

	free := getBE64(reply[6:14])
	total := getBE64(reply[14:22])
	if total == 0 {
		return nil, fmt.Errorf("%w: device reported zero storage size", ErrProtocol)
	}

	return &StorageStats{
		BytesFree:  free,
		BytesTotal: total,
		PercentUse: float64(total-free) * 100 / float64(total),
	}, nil
}

// Ping issues opPing and returns nil if the device sent any reply; the
// reply's content is not inspected.
func Ping(ctx context.Context, b *Backend) error {
	_, err := b.Request(ctx, opPing, nil, GuessTimeoutMS, false)
	return err
}

// SoftwareVersion issues opSWVersion and returns the device's reported
// firmware string (e.g. "1.30A").
func SoftwareVersion(ctx context.Context, b *Backend) (string, error) {
	reply, err := b.Request(ctx, opSWVersion, nil, DefaultSysExTimeoutMS, false)
	if err != nil {
		return "", err
	}
	// The version string starts four bytes past the usual payload offset,
	// matching connector_init's &rx_msg_fw_ver->data[10] read.
	s, _, err := cp1252CString(reply, 10)
	if err != nil {
		return "", err
	}
	return s, nil
}

// DeviceUID issues opDeviceUID and returns the device's 32-bit unique id.
func DeviceUID(ctx context.Context, b *Backend) (uint32, error) {
	reply, err := b.Request(ctx, opDeviceUID, nil, DefaultSysExTimeoutMS, false)
	if err != nil {
		return 0, err
	}
	if len(reply) < 9 {
		return 0, fmt.Errorf("%w: device uid reply too short", ErrProtocol)
	}
	return getBE32(reply[5:9]), nil
}
