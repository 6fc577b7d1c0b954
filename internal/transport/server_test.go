package transport

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"imagefeed/internal/pipeline"
	"imagefeed/internal/tensor"
	"imagefeed/internal/wire"
)

type fakeBackend struct {
	err error
}

func (f *fakeBackend) NextBatch(context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	img, _ := tensor.Host{}.Alloc(tensor.Float32, 1, 2, 2, 1)
	_ = img.WriteRow(0, []float32{1, 2, 3, 4})
	lbl, _ := tensor.Host{}.Alloc(tensor.Int32, 1, 1)
	lbl.Int32s()[0] = 5
	return wire.EncodeBatch(&pipeline.Batch{ID: "x", Seq: 3, Images: img, Labels: lbl}), nil
}

func (f *fakeBackend) Stats() pipeline.Stats {
	return pipeline.Stats{ID: "p", State: pipeline.StateRunning, Batches: 2, RecordsRead: 8}
}

func startBuf(t *testing.T, b Backend) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(lis, b)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestControl_PingStatsNextBatch(t *testing.T) {
	c := startBuf(t, &fakeBackend{})
	ctx := context.Background()

	if got, err := c.Ping(ctx); err != nil || got != "pong" {
		t.Fatalf("Ping = %q, %v", got, err)
	}

	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st["state"] != "running" || st["batches"] != float64(2) || st["records_read"] != float64(8) {
		t.Fatalf("stats %v", st)
	}

	b, err := c.NextBatch(ctx)
	if err != nil {
		t.Fatalf("NextBatch: %v", err)
	}
	if b.Seq != 3 || b.LabelSlice()[0] != 5 || b.Images.Float32s()[3] != 4 {
		t.Fatalf("batch %+v", b)
	}
}

func TestControl_ErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{pipeline.ErrNotRunning, codes.Unavailable},
		{pipeline.ErrSourceExhausted, codes.OutOfRange},
		{&pipeline.BatchError{Seq: 1, Slot: 2, Attempts: 5, Err: errors.New("decode")}, codes.Aborted},
		{errors.New("other"), codes.Internal},
	}
	for _, tc := range cases {
		c := startBuf(t, &fakeBackend{err: tc.err})
		_, err := c.NextBatch(context.Background())
		if got := status.Code(err); got != tc.code {
			t.Fatalf("%v: code %s, want %s", tc.err, got, tc.code)
		}
	}
}

func TestControl_Health(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(lis, &fakeBackend{})
	go func() { _ = srv.Serve() }()
	defer srv.Stop()

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	resp, err := healthpb.NewHealthClient(c.cc).Check(context.Background(), &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status %s", resp.GetStatus())
	}
}
