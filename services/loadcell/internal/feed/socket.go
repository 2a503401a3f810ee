package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"
)

// ServeSocket writes one JSON snapshot per line to every connection accepted
// on lis (TCP or Unix) until ctx is cancelled.
func (f *Feed) ServeSocket(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()

	f.slot.MarkReady()
	f.log.Info("socket feed listening", "addr", lis.Addr().String())
	var delay time.Duration
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			delay = acceptDelay(delay)
			f.log.Warn("accept failed", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		go f.handleConnection(ctx, conn)
	}
}

// acceptDelay doubles the pause after each consecutive accept failure,
// from 5ms up to 1s.
func acceptDelay(prev time.Duration) time.Duration {
	const minDelay, maxDelay = 5 * time.Millisecond, time.Second
	if prev == 0 {
		return minDelay
	}
	return min(prev*2, maxDelay)
}

func (f *Feed) handleConnection(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	defer func() {
		if err := conn.Close(); err != nil {
			f.log.Debug("close failed", "remote", remote, "error", err)
		}
		f.log.Info("socket client detached", "remote", remote)
	}()
	defer f.attach()()
	f.log.Info("socket client attached", "remote", remote)

	enc := json.NewEncoder(conn)
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		_ = conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
		if err := enc.Encode(f.Snapshot()); err != nil {
			f.log.Info("write failed", "remote", remote, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
