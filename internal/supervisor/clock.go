package supervisor

import (
	"context"
	"net"
	"time"
)

// Clock abstracts time so the readiness loop can be driven deterministically.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// Prober checks whether the backing server accepts connections.
type Prober interface {
	Probe(ctx context.Context, addr string, timeout time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tcpProber is a bare TCP-connect probe; it does not speak HTTP.
type tcpProber struct{}

func (tcpProber) Probe(ctx context.Context, addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
