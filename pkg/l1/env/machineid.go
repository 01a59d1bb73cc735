package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the unique ID identifying the machine.
// The hostname is used where no machine ID is available.
func MachineID() string {
	id, err := machineid.ID()
	if err == nil && id != "" {
		return id
	}
	host, herr := os.Hostname()
	if herr != nil || host == "" {
		glog.Warningf("no machine ID: %v", err)
		return "arduinode"
	}
	return host
}

// DeviceID derives a device ID for a port on this machine.
// It's stable across restarts and doesn't reveal the raw machine ID.
func DeviceID(port string) (string, error) {
	return machineid.ProtectedID("arduinode:" + port)
}
