package cmd

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

// hostnamePattern accepts DNS-style names such as "tutord.internal".
// IP literals are checked with net.ParseIP instead.
var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?$`)

// validateAddr checks a listen address in host:port form before the
// server binds it. An empty host means all interfaces. Port 0 is
// rejected: an auto-assigned port is unreachable for whatever proxy
// fronts this service.
func validateAddr(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be in host:port format: %w", err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("port must be numeric: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", port)
	}

	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return nil
	}
	if !hostnamePattern.MatchString(host) {
		return fmt.Errorf("invalid host %q", host)
	}
	return nil
}
