package probe

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

func TestParseRTT(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   float64
	}{
		{"linux", "64 bytes from 1.1.1.1: icmp_seq=1 ttl=57 time=12.3 ms", 12.3},
		{"windows", "Reply from 1.1.1.1: bytes=32 time=8ms TTL=57", 8},
		{"windows_sub_ms", "Reply from 127.0.0.1: bytes=32 time<1ms TTL=128", 1},
		{"busybox", "round-trip min/avg/max = 1.0/2.5/4.0 ms", 2.5},
		{"none", "Request timed out.", 0},
	}
	for _, c := range cases {
		if got := parseRTT(c.output); got != c.want {
			t.Fatalf("%s: parseRTT=%v want %v", c.name, got, c.want)
		}
	}
}

func TestPingArgs(t *testing.T) {
	if got := pingArgs("linux", "h", 2500*time.Millisecond); !reflect.DeepEqual(got, []string{"-c", "1", "-W", "2", "h"}) {
		t.Fatalf("linux args: %v", got)
	}
	if got := pingArgs("linux", "h", 100*time.Millisecond); got[3] != "1" {
		t.Fatalf("linux wait should round up to 1s, got %v", got)
	}
	if got := pingArgs("windows", "h", 2500*time.Millisecond); !reflect.DeepEqual(got, []string{"-n", "1", "-w", "2500", "h"}) {
		t.Fatalf("windows args: %v", got)
	}
}

func TestPingChecker_RejectsFlagLikeHost(t *testing.T) {
	out := NewPingChecker().Check(context.Background(), domain.Target{ID: "x", Address: "-f"})
	if out.Success || !strings.Contains(out.Error, "invalid ping host") {
		t.Fatalf("want invalid host failure, got %+v", out)
	}
}

func TestPingChecker_MissingBinary(t *testing.T) {
	p := &PingChecker{Path: "/nonexistent/ping-binary", GOOS: "linux"}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out := p.Check(ctx, domain.Target{ID: "x", Address: "127.0.0.1"})
	if out.Success || !strings.HasPrefix(out.Error, "ping failed") {
		t.Fatalf("want ping failure, got %+v", out)
	}
}
