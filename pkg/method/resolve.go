// Package method locates and supervises the external helper binaries that
// implement one URL scheme each. The engine talks to a running method over a
// pipe pair using the record protocol from pkg/protocol.
package method

import (
	"fmt"
	"os"
	"strings"

	"github.com/cperrin88/acquire/pkg/acqconfig"
)

// legacySchemes need an explicit Dir::Bin::Methods override before they run.
var legacySchemes = map[string]bool{
	"ftp": true,
	"rsh": true,
	"ssh": true,
}

// Resolution is the outcome of locating a method binary.
type Resolution struct {
	// ExecPath is the binary that actually runs.
	ExecPath string
	// CallingPath becomes the child's argv[0]; it differs from ExecPath
	// when an override redirects the executable.
	CallingPath string
}

// Resolve finds the binary implementing the access scheme. The per-access
// override Dir::Bin::Methods::<access> wins; a disabled override, a legacy
// scheme without an override, or a missing binary each yield an error whose
// text carries the remediation hint.
func Resolve(cfg *acqconfig.Config, access string) (Resolution, error) {
	var execPath string
	override := "Dir::Bin::Methods::" + access
	switch {
	case cfg.Exists(override):
		path, disabled := cfg.MethodPath(access)
		if disabled {
			return Resolution{}, disabledError(access)
		}
		execPath = path
	case legacySchemes[access]:
		return Resolution{}, fmt.Errorf(
			"%w: the method '%s' needs Dir::Bin::Methods::%s set to %q to run again; consider switching to http(s)",
			ErrUnsupported, access, access, access)
	default:
		execPath, _ = cfg.MethodPath(access)
	}

	if _, err := os.Stat(execPath); err != nil {
		return Resolution{}, fmt.Errorf("%w: %s (is the package %s installed?)",
			ErrDriverNotFound, execPath, transportPackage(access))
	}

	return Resolution{ExecPath: execPath, CallingPath: cfg.MethodCallingPath(access)}, nil
}

func disabledError(access string) error {
	err := fmt.Errorf("%w: %s", ErrDisabled, access)
	if access == "http" || access == "https" {
		err = fmt.Errorf("%w (if you meant to use Tor remember to use tor+%s instead of %s)", err, access, access)
	}
	return err
}

// transportPackage names the package that likely ships the missing method:
// the access prefix before any '+', e.g. "tor" for "tor+https".
func transportPackage(access string) string {
	prefix, _, _ := strings.Cut(access, "+")
	return "apt-transport-" + prefix
}
