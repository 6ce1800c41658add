package probe

import (
	"context"
	"errors"
	"net"
)

// DNS failure classes appended to probe error strings.
const (
	DNSNotFound      = "NXDOMAIN"
	DNSServfailOrTmo = "SERVFAIL_or_TIMEOUT"
	DNSResolverError = "RESOLVER_ERROR"
)

// describeError renders a transport error for a CheckOutcome, tagging
// resolver failures with their class so "host unknown" reads differently
// from "host refused".
func describeError(err error) string {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "timeout: " + msg
	}
	if class := dnsClass(err); class != "" {
		msg += " dns=" + class
	}
	return msg
}

func dnsClass(err error) string {
	var de *net.DNSError
	if !errors.As(err, &de) {
		return ""
	}
	switch {
	case de.IsNotFound:
		return DNSNotFound
	case de.IsTimeout || de.IsTemporary:
		return DNSServfailOrTmo
	default:
		return DNSResolverError
	}
}
