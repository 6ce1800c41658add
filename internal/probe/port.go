package probe

import (
	"context"
	"net"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

type PortChecker struct {
	Dialer *net.Dialer
}

func NewPortChecker() *PortChecker {
	return &PortChecker{Dialer: &net.Dialer{}}
}

// Check succeeds when a TCP connection to Address (host:port) establishes
// before ctx expires. The connection is closed right away.
func (p *PortChecker) Check(ctx context.Context, t domain.Target) domain.CheckOutcome {
	start := time.Now()
	addr, err := hostPort(t.Address)
	if err != nil {
		return failed(t, start, err.Error())
	}

	conn, err := p.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return failed(t, start, describeError(err))
	}
	_ = conn.Close()

	return domain.CheckOutcome{
		TargetID:  t.ID,
		CheckedAt: time.Now().UTC(),
		Success:   true,
		LatencyMS: sinceMS(start),
	}
}
