package elektroid

import (
	"context"
	"fmt"
)

// Elektron connector opcodes, grounded on the request byte-array constants
// (PING_REQUEST, FS_SAMPLE_*_REQUEST, DATA_*_REQUEST, OS_UPGRADE_*) in
// connector.c.
const (
	opPing        = 0x01
	opSWVersion   = 0x02
	opDeviceUID   = 0x03
	opStorageInfo = 0x05

	opFSReadDir     = 0x10
	opFSMkdir       = 0x11
	opFSDeleteDir   = 0x12
	opFSDeleteFile  = 0x20
	opFSRename      = 0x21
	opFSOpenReader  = 0x30
	opFSCloseReader = 0x31
	opFSReadBlock   = 0x32
	opFSOpenWriter  = 0x40
	opFSCloseWriter = 0x41
	opFSWriteBlock  = 0x42

	opOSUpgradeStart = 0x50
	opOSUpgradeWrite = 0x51

	opDataList       = 0x53
	opDataOpenRead   = 0x54
	opDataReadBlock  = 0x55
	opDataCloseRead  = 0x56
	opDataOpenWrite  = 0x57
	opDataWriteBlock = 0x58
	opDataCloseWrite = 0x59
	opDataMove       = 0x5A
	opDataCopy       = 0x5B
	opDataClear      = 0x5C
	opDataSwap       = 0x5D
)

// elektronVendorHeader is the common Elektron SysEx prefix used by every
// model in deviceDescs: manufacturer id 0x00 0x20 0x3C, with byte 4
// selecting a protocol revision and byte 5 reserved, per connector.c.
var elektronVendorHeader = VendorHeader{0xF0, 0x00, 0x20, 0x3C, 0x10, 0x00}

// deviceDesc describes one supported Elektron model: the device id its
// identity reply reports, a display name, and which filesystems/storage
// flags it exposes. Grounded on CONNECTOR_DEVICE_DESCS in connector.c.
type deviceDesc struct {
	ID           byte
	Name         string
	FSFlags      int
	StorageFlags int
}

var deviceDescs = []deviceDesc{
	{ID: 0x08, Name: "Analog Rytm", FSFlags: FSSamples, StorageFlags: StoragePlusDrive | StorageRAM},
	{ID: 0x0c, Name: "Digitakt", FSFlags: FSSamples | FSData, StorageFlags: StoragePlusDrive | StorageRAM},
	{ID: 0x10, Name: "Analog Rytm MkII", FSFlags: FSSamples, StorageFlags: StoragePlusDrive | StorageRAM},
	{ID: 0x19, Name: "Model:Samples", FSFlags: FSSamples, StorageFlags: StoragePlusDrive | StorageRAM},
}

func lookupDeviceDesc(id byte) (deviceDesc, bool) {
	for _, d := range deviceDescs {
		if d.ID == id {
			return d, true
		}
	}
	return deviceDesc{}, false
}

// ElektronConnector implements Connector for the Elektron family (Analog
// Rytm, Digitakt, Model:Samples, ...). Grounded on connector_init.
type ElektronConnector struct {
	desc deviceDesc
}

func NewElektronConnector() *ElektronConnector {
	return &ElektronConnector{}
}

// Init identifies the device from a PING reply: unlike every other
// exchange, PING carries the device-family id directly at body offset 5
// rather than a generic success/fail status byte there, matching
// connector_init's `rx_msg_device->data[5]` read.
func (c *ElektronConnector) Init(ctx context.Context, b *Backend) (*Identity, error) {
	pingReply, err := b.Request(ctx, opPing, nil, GuessTimeoutMS, false)
	if err != nil {
		return nil, err
	}
	if len(pingReply) < 6 {
		return nil, fmt.Errorf("%w: ping reply too short", ErrProtocol)
	}
	desc, ok := lookupDeviceDesc(pingReply[5])
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized device id 0x%02x", ErrNotSupported, pingReply[5])
	}
	c.desc = desc

	ver, err := b.Request(ctx, opSWVersion, nil, DefaultSysExTimeoutMS, false)
	if err != nil {
		return nil, err
	}
	version, err := parseFirmwareVersion(ver)
	if err != nil {
		return nil, err
	}

	b.fsOps = c.fsOperations()
	if desc.StorageFlags != 0 {
		b.storageStats = GetStorageStats
	}
	b.upgradeOS = UpgradeOS

	return &Identity{Name: desc.Name, Description: fmt.Sprintf("Elektron %s", desc.Name), Version: version}, nil
}

func (c *ElektronConnector) Destroy() {}

// parseFirmwareVersion reads the version string out of a SW_VERSION reply.
// The string starts at body offset 10, not the generic payload offset 6 —
// connector_init reads it as &rx_msg_fw_ver->data[10], four bytes further
// in than connector_get_msg_string's usual convention.
func parseFirmwareVersion(reply []byte) ([4]byte, error) {
	s, _, err := cp1252CString(reply, 10)
	if err != nil {
		return [4]byte{}, err
	}
	var v [4]byte
	var major, minor, micro int
	subRune := 'A'
	n, _ := fmt.Sscanf(s, "%d.%d%c", &major, &minor, &subRune)
	if n < 2 {
		fmt.Sscanf(s, "%d.%d.%d", &major, &minor, &micro)
	}
	v[0], v[1], v[2], v[3] = byte(major), byte(minor), byte(micro), byte(subRune)
	return v, nil
}

// fsOperations builds this connector's FSOperations table. Samples and data
// are genuinely asymmetric here, not two views of one shape: samples have
// no copy/clear/swap (nil, surfaced by callers as not-supported) and their
// rename doubles as move; data has no mkdir/rename (also nil) but does
// support copy/clear/swap, wired to data_transfer.go. Grounded on
// FS_SAMPLES_OPERATIONS/FS_DATA_OPERATIONS in connector.c.
func (c *ElektronConnector) fsOperations() []FSOperations {
	var ops []FSOperations
	if c.desc.FSFlags&FSSamples != 0 {
		ops = append(ops, FSOperations{
			ID:        FSSamples,
			Name:      "samples",
			Extension: ".wav",
			ReadDir:   readSamplesDir,
			Mkdir:     fsMkdir,
			Delete:    fsDelete,
			Rename:    fsRename,
			Move:      fsRename,
			Download:  DownloadSample,
			Upload:    UploadSample,
			GetID:     func(item Item) string { return item.Name },
		})
	}
	if c.desc.FSFlags&FSData != 0 {
		ops = append(ops, FSOperations{
			ID:        FSData,
			Name:      "data",
			Extension: ".dat",
			ReadDir:   readDataDir,
			Delete:    dataClear,
			Move:      dataMove,
			Copy:      dataCopy,
			Clear:     dataClear,
			Swap:      dataSwap,
			Download:  DownloadDatum,
			Upload:    UploadDatum,
			GetID:     func(item Item) string { return fmt.Sprintf("%d", item.ID) },
		})
	}
	return ops
}

// listArgs builds a DATA_LIST request body: path, start index, end index,
// and an "all" flag, matching connector_new_msg_list. Start/end of 0 with
// all=1 asks for the whole directory in one reply.
func listArgs(path string) ([]byte, error) {
	pathBytes, err := toCP1252(path)
	if err != nil {
		return nil, err
	}
	args := make([]byte, 0, len(pathBytes)+9)
	args = append(args, pathBytes...)
	args = append(args, 0, 0, 0, 0) // start index
	args = append(args, 0, 0, 0, 0) // end index
	args = append(args, 1)          // all
	return args, nil
}

// readSamplesDir issues opFSReadDir (the samples filesystem's own listing
// opcode, distinct from data's DATA_LIST) and parses the reply as a
// sample directory listing. Each record is a discarded BE32 checksum, a
// BE32 size, a discarded write-protected byte, a 1-byte kind and a
// NUL-terminated CP1252 name, starting at body offset 5. Grounded on
// connector_next_sample_entry.
func readSamplesDir(ctx context.Context, b *Backend, path string) ([]Item, error) {
	args, err := fsPathArgs(path)
	if err != nil {
		return nil, err
	}
	reply, err := b.Request(ctx, opFSReadDir, args, DefaultSysExTimeoutMS, true)
	if err != nil {
		return nil, err
	}

	var items []Item
	pos := 5
	for pos < len(reply) {
		if pos+10 > len(reply) {
			return nil, fmt.Errorf("%w: truncated sample directory entry", ErrProtocol)
		}
		size := getBE32(reply[pos+4 : pos+8])
		kind := ItemKind(reply[pos+9])
		pos += 10
		name, next, err := cp1252CString(reply, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		items = append(items, Item{Name: name, Kind: kind, Size: size})
	}
	return items, nil
}

// readDataDir issues opDataList and parses the reply as a data directory
// listing. Entries start at body offset 18 (the leading bytes are listing
// metadata this connector doesn't need): each is a NUL-terminated CP1252
// name, a has-children byte, and a 1-byte type — 1 for a plain directory
// (followed by a discarded BE32 child count), 2 for an item (followed by
// a BE32 index, a BE32 size, a BE16 operations mask, and two discarded
// capability bytes). Grounded on connector_next_data_entry.
func readDataDir(ctx context.Context, b *Backend, path string) ([]Item, error) {
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

	var items []Item
	pos := 18
	for pos < len(reply) {
		name, next, err := cp1252CString(reply, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		if pos+2 > len(reply) {
			return nil, fmt.Errorf("%w: truncated data directory entry", ErrProtocol)
		}
		hasChildren := reply[pos] != 0
		entryType := reply[pos+1]
		pos += 2

		switch entryType {
		case 1:
			if pos+4 > len(reply) {
				return nil, fmt.Errorf("%w: truncated data directory entry", ErrProtocol)
			}
			pos += 4
			items = append(items, Item{Name: name, Kind: ItemDir})
		case 2:
			if pos+12 > len(reply) {
				return nil, fmt.Errorf("%w: truncated data directory entry", ErrProtocol)
			}
			index := getBE32(reply[pos : pos+4])
			size := getBE32(reply[pos+4 : pos+8])
			pos += 12 // index(4) + size(4) + operations mask(2) + 2 capability bytes
			kind := ItemFile
			if hasChildren {
				kind = ItemDir
			}
			items = append(items, Item{Name: name, Kind: kind, Size: size, ID: index})
		default:
			return nil, fmt.Errorf("%w: unknown data directory entry type 0x%02x", ErrProtocol, entryType)
		}
	}
	return items, nil
}

func fsPathArgs(paths ...string) ([]byte, error) {
	var args []byte
	for _, p := range paths {
		enc, err := toCP1252(p)
		if err != nil {
			return nil, err
		}
		args = append(args, enc...)
	}
	return args, nil
}

func fsMkdir(ctx context.Context, b *Backend, path string) error {
	args, err := fsPathArgs(path)
	if err != nil {
		return err
	}
	reply, err := b.Request(ctx, opFSMkdir, args, DefaultSysExTimeoutMS, false)
	if err != nil {
		return err
	}
	return checkMsgStatus(reply)
}

// fsDelete removes a samples-filesystem path. Unlike rename/move, delete
// has no single opcode that recurses on the device's side: the connector
// reads the parent directory to learn whether path is itself a directory,
// and if so lists and deletes its children first before issuing
// opFSDeleteDir on the now-empty directory; a plain file goes straight to
// opFSDeleteFile. Grounded on connector_delete_samples_item.
func fsDelete(ctx context.Context, b *Backend, path string) error {
	isDir, err := fsIsDir(ctx, b, path)
	if err != nil {
		return err
	}
	if !isDir {
		args, err := fsPathArgs(path)
		if err != nil {
			return err
		}
		reply, err := b.Request(ctx, opFSDeleteFile, args, DefaultSysExTimeoutMS, false)
		if err != nil {
			return err
		}
		return checkMsgStatus(reply)
	}

	children, err := readSamplesDir(ctx, b, path)
	if err != nil {
		return err
	}
	for _, child := range children {
		childPath := path
		if childPath != "/" {
			childPath += "/"
		}
		childPath += child.Name
		if err := fsDelete(ctx, b, childPath); err != nil {
			return err
		}
	}

	args, err := fsPathArgs(path)
	if err != nil {
		return err
	}
	reply, err := b.Request(ctx, opFSDeleteDir, args, DefaultSysExTimeoutMS, false)
	if err != nil {
		return err
	}
	return checkMsgStatus(reply)
}

// fsIsDir determines whether path names a directory by listing its
// parent and matching path's basename against the parent's entries,
// mirroring connector_get_path_type.
func fsIsDir(ctx context.Context, b *Backend, path string) (bool, error) {
	if path == "/" {
		return true, nil
	}
	parent, name := splitPath(path)
	entries, err := readSamplesDir(ctx, b, parent)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.Kind == ItemDir, nil
		}
	}
	return false, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// splitPath splits a slash-separated remote path into its parent
// directory and basename, treating a path with no slash as rooted at "/".
func splitPath(path string) (parent, name string) {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i < 0 {
		return "/", path
	}
	if i == 0 {
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}

func fsRename(ctx context.Context, b *Backend, oldPath, newPath string) error {
	args, err := fsPathArgs(oldPath, newPath)
	if err != nil {
		return err
	}
	reply, err := b.Request(ctx, opFSRename, args, DefaultSysExTimeoutMS, false)
	if err != nil {
		return err
	}
	return checkMsgStatus(reply)
}

// RemoteNameFor strips any local directory components and extension from
// localPath, yielding the name a sample should be given on the device.
// Grounded on connector_get_remote_name.
func RemoteNameFor(localPath, extension string) string {
	name := localPath
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			name = name[i+1:]
			break
		}
	}
	if len(name) > len(extension) && name[len(name)-len(extension):] == extension {
		name = name[:len(name)-len(extension)]
	}
	return name
}

// LocalDestPathFor joins dir and name, appending extension if name does
// not already carry it. Grounded on connector_get_local_dst_path.
func LocalDestPathFor(dir, name, extension string) string {
	if len(name) < len(extension) || name[len(name)-len(extension):] != extension {
		name += extension
	}
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
