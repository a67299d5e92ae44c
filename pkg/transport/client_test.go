package transport_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/absmach/hubnspoke/pkg/transport"
	"github.com/absmach/hubnspoke/pkg/transport/spoketest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClientCall(t *testing.T) {
	network := spoketest.NewNetwork()
	spoke := network.Spoke(t, "echo")
	spoke.Handle(transport.MessageTransfer, func(_ context.Context, body []byte) ([]byte, error) {
		return body, nil
	})

	client := network.Client(spoketest.Policy())
	out, err := client.Call(context.Background(), spoke.Address(), transport.MessageTransfer, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), out)
	assert.Equal(t, []byte("ping"), spoke.LastPayload(transport.MessageTransfer))
}

func TestClientRetry(t *testing.T) {
	cases := []struct {
		desc     string
		code     codes.Code
		failures int32
		attempts int32
		err      bool
	}{
		{
			desc:     "unavailable is retried until success",
			code:     codes.Unavailable,
			failures: 2,
			attempts: 3,
		},
		{
			desc:     "unavailable is retried at most five times",
			code:     codes.Unavailable,
			failures: 10,
			attempts: 5,
			err:      true,
		},
		{
			desc:     "invalid argument is not retried",
			code:     codes.InvalidArgument,
			failures: 10,
			attempts: 1,
			err:      true,
		},
		{
			desc:     "deadline exceeded is not retried",
			code:     codes.DeadlineExceeded,
			failures: 10,
			attempts: 1,
			err:      true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			network := spoketest.NewNetwork()
			spoke := network.Spoke(t, "flaky")

			var attempts atomic.Int32
			spoke.Handle(transport.NodeStatus, func(ctx context.Context, body []byte) ([]byte, error) {
				if attempts.Add(1) <= tc.failures {
					return nil, status.Error(tc.code, "not yet")
				}

				return spoketest.Reply("alive")(ctx, body)
			})

			client := network.Client(spoketest.Policy())
			_, err := client.Call(context.Background(), spoke.Address(), transport.NodeStatus, []byte{0xa0})
			assert.Equal(t, tc.attempts, attempts.Load())
			if !tc.err {
				assert.NoError(t, err)

				return
			}

			var ce *transport.CallError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tc.code, ce.Code())
			assert.Equal(t, transport.NodeStatus, ce.Method)
		})
	}
}

func TestClientUnreachable(t *testing.T) {
	network := spoketest.NewNetwork()
	client := network.Client(spoketest.Policy())

	_, err := client.Call(context.Background(), spoketest.Address("missing"), transport.NodeStatus, []byte{0xa0})
	require.Error(t, err)
	assert.True(t, transport.IsCallError(err))

	_, err = client.Call(context.Background(), "", transport.NodeStatus, nil)
	assert.ErrorIs(t, err, transport.ErrEmptyAddress)
}
