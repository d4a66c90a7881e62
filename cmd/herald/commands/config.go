package commands

import (
	"github.com/mosaicnetworks/herald/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Herald config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Herald: *config.NewDefaultConfig(),
	}
}

var _config = NewDefaultCLIConfig()
