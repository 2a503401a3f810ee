package sim_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	pb "gitlab.michelsen.id/phillmichelsen/loadcell/pkg/pb/canbus"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/sim"
)

func startServer(t *testing.T) (*sim.Server, *sim.Bus, pb.CanbusServiceClient) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := sim.NewBus(256)
	go bus.Run(ctx)
	srv := sim.NewServer(bus, sim.ServerConfig{FlushInterval: time.Millisecond})

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	pb.RegisterCanbusServiceServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	return srv, bus, pb.NewCanbusServiceClient(cc)
}

func waitSubscribers(t *testing.T, bus *sim.Bus, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("want %d subscribers, have %d", n, bus.Subscribers())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServerState(t *testing.T) {
	srv, _, client := startServer(t)
	ctx := context.Background()

	reply, err := client.GetServiceState(ctx, &pb.GetServiceStateRequest{})
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if reply.State != pb.ServiceStateRunning {
		t.Fatalf("want RUNNING, got %s", reply.State)
	}

	srv.SetState(domain.StateIdle)
	reply, err = client.GetServiceState(ctx, &pb.GetServiceStateRequest{})
	if err != nil || reply.State != pb.ServiceStateIdle {
		t.Fatalf("want IDLE, got %v %v", reply, err)
	}
}

func TestServerStreamRejectsWhenUnavailable(t *testing.T) {
	srv, _, client := startServer(t)
	srv.SetState(domain.StateUnavailable)

	stream, err := client.StreamRaw(context.Background(), &pb.StreamRawRequest{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := stream.Recv(); status.Code(err) != codes.Unavailable {
		t.Fatalf("want Unavailable, got %v", err)
	}
}

func TestServerStreamAndSend(t *testing.T) {
	_, bus, client := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := client.StreamRaw(ctx, &pb.StreamRawRequest{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	waitSubscribers(t, bus, 1)

	reply, err := client.SendCanbusMessage(ctx, &pb.SendCanbusMessageRequest{Messages: []pb.RawCanbusMessage{
		{ID: 0x1AA, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{ID: 0x0AB, Data: []byte{9}},
	}})
	if err != nil || !reply.Success {
		t.Fatalf("send: %v %v", reply, err)
	}

	var got []pb.RawCanbusMessage
	for len(got) < 2 {
		batch, err := stream.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		got = append(got, batch.Messages...)
	}
	if got[0].ID != 0x1AA || got[1].ID != 0x0AB || len(got[0].Data) != 8 {
		t.Fatalf("unexpected frames %+v", got)
	}
	if got[0].Stamp <= 0 {
		t.Fatalf("send should stamp frames, got %v", got[0].Stamp)
	}

	cancel()
	waitSubscribers(t, bus, 0)
}

func TestServerEveryN(t *testing.T) {
	_, bus, client := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := client.StreamRaw(ctx, &pb.StreamRawRequest{EveryN: 3})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	waitSubscribers(t, bus, 1)

	for i := 0; i < 9; i++ {
		bus.Incoming() <- domain.RawFrame{ID: uint32(i)}
	}

	var ids []uint32
	for len(ids) < 3 {
		batch, err := stream.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		for _, m := range batch.Messages {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) != 3 || ids[0] != 0 || ids[1] != 3 || ids[2] != 6 {
		t.Fatalf("want [0 3 6], got %v", ids)
	}
}

func TestServerStateChangeEndsStreams(t *testing.T) {
	srv, bus, client := startServer(t)

	stream, err := client.StreamRaw(context.Background(), &pb.StreamRawRequest{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	waitSubscribers(t, bus, 1)

	srv.SetState(domain.StateError)
	for {
		_, err := stream.Recv()
		if err == nil {
			continue
		}
		if status.Code(err) != codes.Unavailable {
			t.Fatalf("want Unavailable, got %v", err)
		}
		break
	}

	reply, err := client.SendCanbusMessage(context.Background(), &pb.SendCanbusMessageRequest{Messages: []pb.RawCanbusMessage{{ID: 1}}})
	if err != nil || reply.Success {
		t.Fatalf("send while not streamable should fail, got %v %v", reply, err)
	}
}

func TestServerSendRejectsExtendedID(t *testing.T) {
	_, _, client := startServer(t)
	_, err := client.SendCanbusMessage(context.Background(), &pb.SendCanbusMessageRequest{Messages: []pb.RawCanbusMessage{{ID: 0x800}}})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("want InvalidArgument, got %v", err)
	}
}
