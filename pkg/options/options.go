// Package options holds the reusable, flag-bound option groups shared by the
// groundpeer binaries.
package options

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group.
type IOptions interface {
	// Validate checks the group and returns every problem found.
	Validate() []error

	// AddFlags binds the group to fs.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a host:port pair with a valid port.
func ValidateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not in host:port format: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%q is not a valid port", port)
	}
	return nil
}

// join builds a dotted flag name from optional prefixes.
func join(name string, prefixes ...string) string {
	for i := len(prefixes) - 1; i >= 0; i-- {
		if prefixes[i] != "" {
			name = prefixes[i] + "." + name
		}
	}
	return name
}
