//go:build linux

package discovery

import (
	"os"
	"strconv"
	"strings"
)

// LocalProcesses enumerates /proc/*/environ for EnvVar, reporting local
// (non-containerized) processes carrying the debug port hint (spec §6:
// "On Linux, also enumerate /proc/*/environ for the same env var and
// report local processes").
func (d *Discoverer) LocalProcesses() ([]Found, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	var found []Found
	prefix := d.EnvVar + "="
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		raw, err := os.ReadFile("/proc/" + entry.Name() + "/environ")
		if err != nil {
			continue // process exited or unreadable (permissions); skip silently
		}
		for _, kv := range strings.Split(string(raw), "\x00") {
			if !strings.HasPrefix(kv, prefix) {
				continue
			}
			port, err := strconv.Atoi(strings.TrimPrefix(kv, prefix))
			if err != nil {
				break
			}
			if d.reachableLocal(port) {
				found = append(found, Found{Host: "127.0.0.1", Port: port, Name: strconv.Itoa(pid), Source: SourceProc})
			}
			break
		}
	}
	return found, nil
}
