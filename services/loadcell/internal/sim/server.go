package sim

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "gitlab.michelsen.id/phillmichelsen/loadcell/pkg/pb/canbus"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/relay"
)

type ServerConfig struct {
	// FlushInterval bounds how long a frame waits before its batch is sent.
	FlushInterval time.Duration
	// MaxBatch sends a batch early once it holds this many frames.
	MaxBatch int
	// SubscriberBuffer is the bus buffer of each stream.
	SubscriberBuffer int
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Millisecond
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 64
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 1024
	}
	return c
}

// Server serves the canbus relay API from a Bus.
type Server struct {
	pb.UnimplementedCanbusServiceServer

	bus     *Bus
	cfg     ServerConfig
	state   atomic.Int32
	started time.Time
	log     *slog.Logger

	// subscribed runs between a stream's bus subscription and its state check.
	subscribed func()
}

func NewServer(bus *Bus, cfg ServerConfig) *Server {
	s := &Server{
		bus:     bus,
		cfg:     cfg.withDefaults(),
		started: time.Now(),
		log:     slog.Default().With("cmp", cmp),
	}
	s.state.Store(int32(domain.StateRunning))
	return s
}

func (s *Server) State() domain.StreamState { return domain.StreamState(s.state.Load()) }

// SetState changes the reported state. Leaving a streamable state ends every
// open stream with codes.Unavailable.
func (s *Server) SetState(st domain.StreamState) {
	prev := domain.StreamState(s.state.Swap(int32(st)))
	if prev == st {
		return
	}
	s.log.Info("service state changed", "from", prev, "to", st)
	if !st.Streamable() {
		if n := s.bus.DropAll(); n > 0 {
			s.log.Info("dropped streams", "count", n)
		}
	}
}

// Flap alternates between running for up and unavailable for down until ctx
// is cancelled. The state is left running on return.
func (s *Server) Flap(ctx context.Context, up, down time.Duration) {
	defer s.SetState(domain.StateRunning)
	for {
		s.SetState(domain.StateRunning)
		if !wait(ctx, up) {
			return
		}
		s.SetState(domain.StateUnavailable)
		if !wait(ctx, down) {
			return
		}
	}
}

func (s *Server) uptime() float64 { return time.Since(s.started).Seconds() }

func (s *Server) GetServiceState(_ context.Context, _ *pb.GetServiceStateRequest) (*pb.GetServiceStateReply, error) {
	return &pb.GetServiceStateReply{
		State:  relay.StateToProto(s.State()),
		Uptime: s.uptime(),
	}, nil
}

func (s *Server) StreamRaw(req *pb.StreamRawRequest, stream pb.CanbusService_StreamRawServer) error {
	// Subscribe before checking the state: SetState stores the new state
	// before DropAll, so a subscription racing it is either dropped or sees
	// the new state here.
	id, ch := s.bus.Subscribe(s.cfg.SubscriberBuffer)
	defer s.bus.Unsubscribe(id)
	if s.subscribed != nil {
		s.subscribed()
	}
	if st := s.State(); !st.Streamable() {
		return status.Errorf(codes.Unavailable, "canbus service is %s", st)
	}
	s.log.Info("stream started", "subscriber", id, "every_n", req.EveryN)

	every := uint64(max(req.EveryN, 1))
	var seen uint64

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]pb.RawCanbusMessage, 0, s.cfg.MaxBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := stream.Send(&pb.StreamCanbusReply{Messages: batch})
		batch = make([]pb.RawCanbusMessage, 0, s.cfg.MaxBatch)
		return err
	}

	for {
		select {
		case <-stream.Context().Done():
			s.log.Info("stream ended", "subscriber", id, "reason", context.Cause(stream.Context()))
			return nil
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case f, ok := <-ch:
			if !ok {
				return status.Errorf(codes.Unavailable, "canbus service is %s", s.State())
			}
			seen++
			if (seen-1)%every != 0 {
				continue
			}
			batch = append(batch, pb.RawCanbusMessage{
				Stamp: f.RemoteStamp,
				ID:    f.ID,
				Data:  f.Payload,
			})
			if len(batch) >= s.cfg.MaxBatch {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// SendCanbusMessage puts frames on the bus. It reports failure if the bus is
// full or the service is not streamable.
func (s *Server) SendCanbusMessage(ctx context.Context, req *pb.SendCanbusMessageRequest) (*pb.SendCanbusMessageReply, error) {
	if !s.State().Streamable() {
		return &pb.SendCanbusMessageReply{Success: false}, nil
	}
	now := time.Now()
	for _, m := range req.Messages {
		if m.ID > domain.MaxStandardID {
			return nil, status.Errorf(codes.InvalidArgument, "id 0x%x exceeds 11-bit range", m.ID)
		}
		stamp := m.Stamp
		if stamp == 0 {
			stamp = s.uptime()
		}
		f := domain.RawFrame{ID: m.ID, Payload: m.Data, RemoteStamp: stamp, Received: now}
		select {
		case s.bus.Incoming() <- f:
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		default:
			s.log.Warn("bus full, rejecting send", "frame", f.String())
			return &pb.SendCanbusMessageReply{Success: false}, nil
		}
	}
	return &pb.SendCanbusMessageReply{Success: true}, nil
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
