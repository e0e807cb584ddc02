package elektroid

import (
	"fmt"
	"strings"

	"github.com/jochenvg/go-udev"
)

// PortInfo describes one rawmidi character device discovered on the bus.
type PortInfo struct {
	DevNode string
	Name    string
	Vendor  string
}

// EnumeratePorts lists ALSA rawmidi device nodes under /dev/snd, the way a
// hot-plug-aware frontend would populate a device picker instead of
// requiring the user to type a device path. Grounded on the "scan, then
// open" pattern other hardware-facing tools in the pack use go-udev for;
// the teacher itself declares the dependency but never exercises it.
func EnumeratePorts() ([]PortInfo, error) {
	u := udev.Udev{}
	enum := u.NewEnumerate()
	if err := enum.AddMatchSubsystem("sound"); err != nil {
		return nil, fmt.Errorf("%w: matching sound subsystem: %v", ErrIO, err)
	}

	devices, err := enum.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerating devices: %v", ErrIO, err)
	}

	var ports []PortInfo
	for _, d := range devices {
		devnode := d.Devnode()
		if devnode == "" || !strings.Contains(devnode, "midi") {
			continue
		}
		vendor := d.PropertyValue("ID_VENDOR")
		name := d.PropertyValue("ID_MODEL")
		if name == "" {
			name = devnode
		}
		ports = append(ports, PortInfo{DevNode: devnode, Name: name, Vendor: vendor})
	}
	return ports, nil
}
