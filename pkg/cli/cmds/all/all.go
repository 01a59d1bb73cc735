// Package all registers all shell commands.
package all

import (
	// register pin commands
	_ "github.com/robotalks/arduinode/pkg/cli/cmds/pins"
)
