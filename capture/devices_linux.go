//go:build linux

package capture

import (
	"os"
	"path/filepath"
	"strings"
)

// Devices enumerates v4l2 capture nodes. Friendly names come from sysfs
// when available.
func Devices() ([]DeviceInfo, error) {
	nodes, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	var devices []DeviceInfo
	for _, node := range nodes {
		name := filepath.Base(node)
		sysName := filepath.Join("/sys/class/video4linux", name, "name")
		if data, err := os.ReadFile(sysName); err == nil {
			name = strings.TrimSpace(string(data))
		}
		devices = append(devices, DeviceInfo{ID: node, Name: name})
	}
	return devices, nil
}
