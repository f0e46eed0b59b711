package acquire

import (
	version "github.com/hashicorp/go-version"

	"github.com/cperrin88/acquire/pkg/acqconfig"
	"github.com/cperrin88/acquire/pkg/protocol"
)

// MethodConfig is the per-access-scheme record describing one method binary.
// It is created when the scheme first appears, filled once from the method's
// 100 Capabilities reply and read-only afterwards.
type MethodConfig struct {
	// Access is the scheme this method serves, e.g. "http" or "file".
	Access string
	// Version is the protocol version string the method advertised.
	Version string

	SingleInstance bool
	Pipeline       bool
	SendConfig     bool
	LocalOnly      bool
	NeedsCleanup   bool
	Removable      bool

	auxRequests    bool
	sendURIEncoded bool
}

// NewMethodConfig creates the record for an access scheme.
func NewMethodConfig(access string) *MethodConfig {
	return &MethodConfig{Access: access}
}

// ParseCapabilities fills the record from a 100 Capabilities message.
// Send-URI-Encoded is only honored when Acquire::Send-URI-Encoded allows it.
func (c *MethodConfig) ParseCapabilities(msg *protocol.Message, conf *acqconfig.Config) {
	c.Version = msg.Get("Version")
	c.SingleInstance = msg.GetBool("Single-Instance", false)
	c.Pipeline = msg.GetBool("Pipeline", false)
	c.SendConfig = msg.GetBool("Send-Config", false)
	c.LocalOnly = msg.GetBool("Local-Only", false)
	c.NeedsCleanup = msg.GetBool("Needs-Cleanup", false)
	c.Removable = msg.GetBool("Removable", false)
	c.auxRequests = msg.GetBool("AuxRequests", false)
	if conf.FindB("Acquire::Send-URI-Encoded", true) {
		c.sendURIEncoded = msg.GetBool("Send-URI-Encoded", false)
	}
}

// AuxRequests reports whether the method may ask for auxiliary resources.
func (c *MethodConfig) AuxRequests() bool { return c.auxRequests }

// SendURIEncoded reports whether the method expects URIs in encoded form.
func (c *MethodConfig) SendURIEncoded() bool { return c.sendURIEncoded }

// VersionAtLeast reports whether the advertised protocol version parses and
// is at least min. Methods that send no or an unparseable version fail the
// check.
func (c *MethodConfig) VersionAtLeast(min string) bool {
	have, err := version.NewVersion(c.Version)
	if err != nil {
		return false
	}
	want, err := version.NewVersion(min)
	if err != nil {
		return false
	}
	return have.GreaterThanOrEqual(want)
}
