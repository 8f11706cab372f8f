//go:build !linux

package discovery

// LocalProcesses is a no-op outside Linux: /proc/*/environ enumeration
// is a Linux-specific discovery path (spec §6).
func (d *Discoverer) LocalProcesses() ([]Found, error) {
	return nil, nil
}
