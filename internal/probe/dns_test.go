package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestDescribeError_DNSClass(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, "dns=NXDOMAIN"},
		{&net.DNSError{Err: "i/o timeout", Name: "slow.example", IsTimeout: true}, "dns=SERVFAIL_or_TIMEOUT"},
		{fmt.Errorf("dial: %w", &net.DNSError{Err: "server misbehaving", Name: "x"}), "dns=RESOLVER_ERROR"},
	}
	for _, c := range cases {
		if got := describeError(c.err); !strings.HasSuffix(got, c.want) {
			t.Fatalf("describeError(%v)=%q want suffix %q", c.err, got, c.want)
		}
	}
}

func TestDescribeError_Plain(t *testing.T) {
	if got := describeError(errors.New("connection refused")); got != "connection refused" {
		t.Fatalf("plain error changed: %q", got)
	}
	if got := describeError(fmt.Errorf("get: %w", context.DeadlineExceeded)); !strings.HasPrefix(got, "timeout: ") {
		t.Fatalf("deadline should be tagged, got %q", got)
	}
}
