package probe

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// hostPort accepts "host:port", "tcp://host:port" or an http(s) URL (port
// defaulting to 80/443) and returns a dialable host:port.
func hostPort(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil {
			return "", fmt.Errorf("invalid address %q: %w", addr, err)
		}
		port := u.Port()
		if port == "" {
			switch u.Scheme {
			case "https":
				port = "443"
			case "http":
				port = "80"
			default:
				return "", fmt.Errorf("address %q has no port", addr)
			}
		}
		if u.Hostname() == "" {
			return "", fmt.Errorf("address %q has no host", addr)
		}
		return net.JoinHostPort(u.Hostname(), port), nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" || port == "" {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return net.JoinHostPort(host, port), nil
}

// hostOnly strips scheme, path and port, leaving the bare host name.
func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "://") {
		if u, err := url.Parse(addr); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
