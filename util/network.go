package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// SplitHostPort accepts "host" or "host:port" and fills in defaultPort
// when the port is absent.  Bare IPv6 literals are accepted as hosts.
func SplitHostPort(spec string, defaultPort int) (string, int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", 0, fmt.Errorf("empty address")
	}
	if net.ParseIP(spec) != nil {
		return spec, defaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(spec)
	if err != nil {
		// No port component.
		return strings.Trim(spec, "[]"), defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	if host == "" {
		return "", 0, fmt.Errorf("host is required in %q", spec)
	}
	return host, port, nil
}
