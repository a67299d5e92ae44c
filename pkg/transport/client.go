package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client issues unary calls to spokes. Every call dials its own channel
// configured by the policy for that payload, and closes it on return.
type Client struct {
	policy Policy
	opts   []grpc.DialOption
}

func NewClient(policy Policy, opts ...grpc.DialOption) *Client {
	return &Client{
		policy: policy,
		opts:   opts,
	}
}

func (c *Client) Policy() Policy {
	return c.policy
}

func (c *Client) Call(ctx context.Context, address string, method Method, payload []byte) ([]byte, error) {
	if address == "" {
		return nil, ErrEmptyAddress
	}

	opts, err := c.policy.DialOptions(len(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build channel options: %w", err)
	}
	opts = append(opts, c.opts...)

	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, &CallError{Method: method, Address: address, Err: err}
	}
	defer conn.Close()

	if c.policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.CallTimeout)
		defer cancel()
	}

	out := new(wrapperspb.BytesValue)
	if err := conn.Invoke(ctx, method.FullName(), wrapperspb.Bytes(payload), out); err != nil {
		return nil, &CallError{Method: method, Address: address, Err: err}
	}

	return out.GetValue(), nil
}
