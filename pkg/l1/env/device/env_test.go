package device

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
)

const boardProfile = `
port = "/dev/ttyACM0"
baud = 57600
command_timeout = "2s"

[device]
id = "greenhouse"

[device.meta]
board = "uno"
description = "greenhouse sensors"

[device.meta.labels]
room = "a"
`

func writeProfile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "board.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	conf := *Default()
	require.NoError(t, conf.LoadFile(writeProfile(t, boardProfile)))
	assert.Equal(t, "/dev/ttyACM0", conf.Port)
	assert.Equal(t, 57600, conf.Baud)
	assert.Equal(t, 2*time.Second, conf.CommandTimeout)
	assert.Equal(t, "greenhouse", conf.Info.ID)
	assert.Equal(t, "uno", conf.Info.Meta.Board)
	assert.Equal(t, map[string]string{"room": "a"}, conf.Info.Meta.Labels)
	// untouched keys keep defaults.
	assert.Equal(t, l0.DefaultHandshake, conf.Handshake)
	assert.Equal(t, Default().MQTTBrokerURL, conf.MQTTBrokerURL)
}

func TestLoadFileErrors(t *testing.T) {
	conf := *Default()
	assert.Error(t, conf.LoadFile(writeProfile(t, "bogus = 1\n")))
	assert.Error(t, conf.LoadFile(writeProfile(t, "port = \n")))
	assert.Error(t, conf.LoadFile(filepath.Join(t.TempDir(), "missing.toml")))
}

func TestValidate(t *testing.T) {
	conf := *Default()
	conf.Port = ""
	assert.Error(t, conf.Validate())

	conf.Port = "/dev/ttyUSB0"
	conf.Info.ID = "a/b"
	assert.Error(t, conf.Validate())

	conf.Info.ID = ""
	require.NoError(t, conf.Validate())
	assert.NotEmpty(t, conf.Info.ID)
}

func TestNewClient(t *testing.T) {
	conf := *Default()
	conf.Port = "tcp://127.0.0.1:2000"
	conf.Info.ID = "bench"
	conf.Handshake = "BOOT"
	client, err := conf.NewClient()
	require.NoError(t, err)
	assert.Equal(t, l0.StateUninitialized, client.State())
	assert.Equal(t, "BOOT", client.Config.Handshake)
	assert.Equal(t, conf.CommandTimeout, client.Config.CommandTimeout)

	conf.Port = "udp://127.0.0.1:2000"
	_, err = conf.NewClient()
	assert.Error(t, err)
}

func TestNewBridge(t *testing.T) {
	conf := *Default()
	conf.Port = "tcp://127.0.0.1:2000"
	conf.Info.ID = "bench"
	client, err := conf.NewClient()
	require.NoError(t, err)
	b, err := conf.NewBridge(client)
	require.NoError(t, err)
	assert.Equal(t, "tcp://127.0.0.1:2000", b.Status().Port)
	assert.Equal(t, "bench", b.Status().ID)
	assert.Equal(t, b, client.Notifier)

	conf.MQTTBrokerURL = ""
	_, err = conf.NewBridge(client)
	assert.Error(t, err)
}

func TestNewHost(t *testing.T) {
	conf := *Default()
	conf.Port = "tcp://127.0.0.1:2000"
	conf.Info.ID = "bench"
	client, err := conf.NewClient()
	require.NoError(t, err)

	_, err = conf.NewHost(client)
	assert.Error(t, err)

	conf.ListenAddr = ":7000"
	conf.QueueCapacity = 3
	h, err := conf.NewHost(client)
	require.NoError(t, err)
	assert.Equal(t, ":7000", h.Addr)
	assert.Equal(t, 3, h.Commands.Cap())
}
