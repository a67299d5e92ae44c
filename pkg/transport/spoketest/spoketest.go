// Package spoketest runs in-memory spokes for hub tests.
package spoketest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/absmach/hubnspoke/pkg/payload"
	"github.com/absmach/hubnspoke/pkg/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 4 * 1024 * 1024

type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Policy is the default transport policy with backoff shortened for tests.
func Policy() transport.Policy {
	p := transport.DefaultPolicy()
	p.InitialBackoff = 5 * time.Millisecond
	p.MaxBackoff = 20 * time.Millisecond
	p.CallTimeout = 5 * time.Second

	return p
}

// Network routes "passthrough:///<name>" addresses to in-memory listeners.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*bufconn.Listener
}

func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*bufconn.Listener)}
}

func (n *Network) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		n.mu.Lock()
		lis, ok := n.listeners[addr]
		n.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("no spoke listening at %s", addr)
		}

		return lis.DialContext(ctx)
	})
}

func (n *Network) Client(policy transport.Policy) *transport.Client {
	return transport.NewClient(policy, n.DialOption())
}

// Address is the dial target of a spoke named name, whether or not it exists.
func Address(name string) string {
	return "passthrough:///" + name
}

// Spoke starts a spoke named name. It answers with the protocol's success
// statuses until handlers are overridden, and stops when the test ends.
func (n *Network) Spoke(t testing.TB, name string) *Spoke {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	s := &Spoke{
		name:     name,
		srv:      grpc.NewServer(Policy().ServerOptions()...),
		calls:    make(map[transport.Method]int),
		payloads: make(map[transport.Method][]byte),
		handlers: map[transport.Method]Handler{
			transport.NodeStatus:      Reply("alive"),
			transport.ModelTransfer:   Reply("model received"),
			transport.MessageTransfer: Reply("training completed"),
			transport.StopMessage:     Reply("stopping"),
		},
	}
	transport.RegisterSpokeServer(s.srv, s)

	n.mu.Lock()
	n.listeners[name] = lis
	n.mu.Unlock()

	go func() {
		_ = s.srv.Serve(lis)
	}()
	t.Cleanup(s.Stop)

	return s
}

// Reply returns a handler answering with the CBOR encoding of v.
func Reply(v any) Handler {
	return func(context.Context, []byte) ([]byte, error) {
		return payload.Encode(v)
	}
}

// Fail returns a handler failing every call with code c.
func Fail(c codes.Code) Handler {
	return func(context.Context, []byte) ([]byte, error) {
		return nil, status.Error(c, "spoke failure")
	}
}

type Spoke struct {
	name     string
	srv      *grpc.Server
	mu       sync.Mutex
	calls    map[transport.Method]int
	payloads map[transport.Method][]byte
	handlers map[transport.Method]Handler
	stopOnce sync.Once
}

func (s *Spoke) Address() string {
	return Address(s.name)
}

func (s *Spoke) Handle(method transport.Method, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[method] = h
}

func (s *Spoke) Calls(method transport.Method) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[method]
}

func (s *Spoke) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, c := range s.calls {
		total += c
	}

	return total
}

// LastPayload is the most recent request body received for method.
func (s *Spoke) LastPayload(method transport.Method) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.payloads[method]
}

func (s *Spoke) Stop() {
	s.stopOnce.Do(s.srv.Stop)
}

func (s *Spoke) serve(ctx context.Context, method transport.Method, body []byte) ([]byte, error) {
	s.mu.Lock()
	s.calls[method]++
	s.payloads[method] = body
	h, ok := s.handlers[method]
	s.mu.Unlock()

	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "%s not configured", method)
	}

	return h(ctx, body)
}

func (s *Spoke) NodeStatus(ctx context.Context, body []byte) ([]byte, error) {
	return s.serve(ctx, transport.NodeStatus, body)
}

func (s *Spoke) ModelTransfer(ctx context.Context, body []byte) ([]byte, error) {
	return s.serve(ctx, transport.ModelTransfer, body)
}

func (s *Spoke) MessageTransfer(ctx context.Context, body []byte) ([]byte, error) {
	return s.serve(ctx, transport.MessageTransfer, body)
}

func (s *Spoke) TrainedModel(ctx context.Context, body []byte) ([]byte, error) {
	return s.serve(ctx, transport.TrainedModel, body)
}

func (s *Spoke) ReportTransfer(ctx context.Context, body []byte) ([]byte, error) {
	return s.serve(ctx, transport.ReportTransfer, body)
}

func (s *Spoke) StopMessage(ctx context.Context, body []byte) ([]byte, error) {
	return s.serve(ctx, transport.StopMessage, body)
}
