//go:build !linux

package capture

// Devices returns no explicit devices; GstSource falls back to
// autovideosrc and lets the platform pick.
func Devices() ([]DeviceInfo, error) {
	return nil, nil
}
