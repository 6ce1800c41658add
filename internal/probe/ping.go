package probe

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// PingChecker sends one ICMP echo through the platform ping binary, which
// avoids needing raw-socket privileges in the engine process.
type PingChecker struct {
	Path string
	GOOS string
}

func NewPingChecker() *PingChecker {
	return &PingChecker{Path: "ping", GOOS: runtime.GOOS}
}

func (p *PingChecker) Check(ctx context.Context, t domain.Target) domain.CheckOutcome {
	start := time.Now()
	host := hostOnly(t.Address)
	if host == "" || strings.HasPrefix(host, "-") {
		return failed(t, start, "invalid ping host "+strconv.Quote(t.Address))
	}

	wait := t.Timeout
	if dl, ok := ctx.Deadline(); ok {
		wait = time.Until(dl)
	}
	if wait <= 0 {
		wait = time.Second
	}

	cmd := exec.CommandContext(ctx, p.Path, pingArgs(p.GOOS, host, wait)...)
	cmd.WaitDelay = 500 * time.Millisecond
	output, err := cmd.CombinedOutput()

	if ctx.Err() != nil {
		return failed(t, start, "ping timeout")
	}
	if err != nil {
		msg := firstLine(output)
		if msg == "" {
			msg = err.Error()
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) && ee.ExitCode() == 1 {
			msg = "no reply from " + host
		}
		return failed(t, start, "ping failed: "+msg)
	}

	lat := parseRTT(string(output))
	if lat <= 0 {
		lat = sinceMS(start)
	}
	return domain.CheckOutcome{
		TargetID:  t.ID,
		CheckedAt: time.Now().UTC(),
		Success:   true,
		LatencyMS: lat,
	}
}

func pingArgs(goos, host string, wait time.Duration) []string {
	ms := wait.Milliseconds()
	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(ms, 10), host}
	case "darwin", "freebsd":
		return []string{"-c", "1", "-W", strconv.FormatInt(ms, 10), host}
	default:
		// linux iputils takes whole seconds
		secs := int64(wait / time.Second)
		if secs < 1 {
			secs = 1
		}
		return []string{"-c", "1", "-W", strconv.FormatInt(secs, 10), host}
	}
}

var rttPatterns = []*regexp.Regexp{
	regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`),
	regexp.MustCompile(`round-trip min/avg/max(?:/stddev)? = [0-9.]+/([0-9.]+)/`),
}

// parseRTT extracts the round-trip time in ms from ping output, 0 if absent.
func parseRTT(output string) float64 {
	for _, re := range rttPatterns {
		if m := re.FindStringSubmatch(output); len(m) > 1 {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v
			}
		}
	}
	return 0
}

func firstLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}
