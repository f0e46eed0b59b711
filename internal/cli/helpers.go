package cli

import (
	"github.com/cperrin88/acquire/pkg/acqconfig"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
)

// defaultMethodsDir is where method binaries live unless configured
// otherwise.
const defaultMethodsDir = "/usr/lib/apt/methods"

// loadConfig builds the configuration tree from the --config file (when
// given) and fills in the defaults the engine expects.
func loadConfig() (*acqconfig.Config, error) {
	var conf *acqconfig.Config
	var err error

	configPath := ""
	if ConfigPath != nil {
		configPath = *ConfigPath
	}

	if configPath != "" {
		conf, err = acqconfig.Load(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		conf = acqconfig.New()
	}

	if !conf.Exists("Dir::Bin::Methods") {
		conf.Set("Dir::Bin::Methods", defaultMethodsDir)
	}
	if Verbose != nil && *Verbose {
		conf.Set("Debug::pkgAcquire::Worker", "true")
	}
	return conf, nil
}
