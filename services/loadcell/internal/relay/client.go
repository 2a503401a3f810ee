// Package relay connects to the canbus relay service over gRPC.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	pb "gitlab.michelsen.id/phillmichelsen/loadcell/pkg/pb/canbus"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/supervisor"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const cmp = "relay"

type Config struct {
	Address string
	Port    int
	// EveryN asks the relay to forward every n-th frame only.
	EveryN uint32
	// CallTimeout bounds unary calls. Streams are bounded by their context.
	CallTimeout time.Duration
}

func (c Config) Target() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Client implements supervisor.Source.
type Client struct {
	api    pb.CanbusServiceClient
	cfg    Config
	now    func() time.Time
	closer func() error
}

var _ supervisor.Source = (*Client)(nil)

// Dial creates a client for cfg.Target(). The connection is established
// lazily and re-established by gRPC after failures.
func Dial(cfg Config, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	cc, err := grpc.NewClient(cfg.Target(), opts...)
	if err != nil {
		return nil, fmt.Errorf("new canbus client %s: %w", cfg.Target(), err)
	}
	c := New(cc, cfg)
	c.closer = cc.Close
	return c, nil
}

// New wraps an existing connection. Close does not close cc.
func New(cc grpc.ClientConnInterface, cfg Config) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Second
	}
	return &Client{
		api: pb.NewCanbusServiceClient(cc),
		cfg: cfg,
		now: time.Now,
	}
}

func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// State queries the relay's service state.
func (c *Client) State(ctx context.Context) (domain.StreamState, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	reply, err := c.api.GetServiceState(ctx, &pb.GetServiceStateRequest{})
	if err != nil {
		return domain.StateUnknown, fmt.Errorf("%w: get service state: %w", domain.ErrTransportFault, err)
	}
	return stateFromProto(reply.State), nil
}

// Open starts a raw frame stream bound to ctx.
func (c *Client) Open(ctx context.Context) (supervisor.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	rx, err := c.api.StreamRaw(ctx, &pb.StreamRawRequest{EveryN: c.cfg.EveryN})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: open stream: %w", domain.ErrTransportFault, err)
	}
	return &stream{rx: rx, cancel: cancel, now: c.now}, nil
}

// Send writes frames onto the bus through the relay.
func (c *Client) Send(ctx context.Context, frames ...domain.RawFrame) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	req := &pb.SendCanbusMessageRequest{Messages: make([]pb.RawCanbusMessage, 0, len(frames))}
	for _, f := range frames {
		req.Messages = append(req.Messages, pb.RawCanbusMessage{
			Stamp: f.RemoteStamp,
			ID:    f.ID,
			Data:  f.Payload,
		})
	}

	reply, err := c.api.SendCanbusMessage(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: send: %w", domain.ErrTransportFault, err)
	}
	if !reply.Success {
		return fmt.Errorf("%w: relay rejected %d frames", domain.ErrTransportFault, len(frames))
	}
	return nil
}

type stream struct {
	rx     pb.CanbusService_StreamRawClient
	cancel context.CancelFunc
	now    func() time.Time
}

func (s *stream) Recv() ([]domain.RawFrame, error) {
	reply, err := s.rx.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: end of stream", domain.ErrTransportFault)
		}
		if status.Code(err) == codes.Unavailable {
			return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrTransportFault, err)
	}

	received := s.now()
	frames := make([]domain.RawFrame, 0, len(reply.Messages))
	for _, m := range reply.Messages {
		if m.Error || m.RemoteTransmission {
			slog.Default().Debug("dropping non-data frame", "cmp", cmp, "id", m.ID, "error", m.Error, "rtr", m.RemoteTransmission)
			continue
		}
		frames = append(frames, domain.RawFrame{
			ID:          m.ID,
			Payload:     m.Data,
			RemoteStamp: m.Stamp,
			Received:    received,
		})
	}
	return frames, nil
}

func (s *stream) Cancel() { s.cancel() }

func stateFromProto(s pb.ServiceState) domain.StreamState {
	switch s {
	case pb.ServiceStateStopped:
		return domain.StateStopped
	case pb.ServiceStateRunning:
		return domain.StateRunning
	case pb.ServiceStateIdle:
		return domain.StateIdle
	case pb.ServiceStateUnavailable:
		return domain.StateUnavailable
	case pb.ServiceStateError:
		return domain.StateError
	default:
		return domain.StateUnknown
	}
}

// StateToProto maps a domain state onto the wire enum.
func StateToProto(s domain.StreamState) pb.ServiceState {
	switch s {
	case domain.StateStopped:
		return pb.ServiceStateStopped
	case domain.StateRunning:
		return pb.ServiceStateRunning
	case domain.StateIdle:
		return pb.ServiceStateIdle
	case domain.StateUnavailable:
		return pb.ServiceStateUnavailable
	case domain.StateError:
		return pb.ServiceStateError
	default:
		return pb.ServiceStateUnknown
	}
}
