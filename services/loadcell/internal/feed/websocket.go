package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Handler serves /ws (websocket push) and /snapshot (single JSON document).
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.serveWebsocket)
	mux.HandleFunc("/snapshot", f.serveSnapshot)
	return mux
}

// ServeHTTP serves Handler on lis until ctx is cancelled.
func (f *Feed) ServeHTTP(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           f.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	f.slot.MarkReady()
	f.log.Info("websocket feed listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (f *Feed) serveSnapshot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(f.Snapshot()); err != nil {
		f.log.Warn("snapshot write failed", "error", err)
	}
}

func (f *Feed) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		f.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer c.CloseNow()
	defer f.attach()()

	// Clients never send; CloseRead handles their close frame.
	ctx := c.CloseRead(r.Context())
	f.log.Info("websocket client attached", "remote", r.RemoteAddr)

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := f.push(ctx, c); err != nil {
			if ctx.Err() == nil {
				f.log.Info("websocket client dropped", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			_ = c.Close(websocket.StatusNormalClosure, "")
			f.log.Info("websocket client detached", "remote", r.RemoteAddr)
			return
		case <-ticker.C:
		}
	}
}

func (f *Feed) push(ctx context.Context, c *websocket.Conn) error {
	wctx, cancel := context.WithTimeout(ctx, f.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, c, f.Snapshot())
}
