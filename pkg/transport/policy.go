package transport

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const (
	// ServiceName is the fully qualified gRPC service every spoke exposes.
	ServiceName = "protobufs.MonaiFLService"

	defMaxMsgSize = 1000 * 1024 * 1024
	// framingOverhead covers the envelope tag and length prefix around a payload.
	framingOverhead = 64
)

type Method string

const (
	NodeStatus      Method = "NodeStatus"
	ModelTransfer   Method = "ModelTransfer"
	MessageTransfer Method = "MessageTransfer"
	TrainedModel    Method = "TrainedModel"
	ReportTransfer  Method = "ReportTransfer"
	StopMessage     Method = "StopMessage"
)

func (m Method) FullName() string {
	return "/" + ServiceName + "/" + string(m)
}

// Policy is the channel configuration applied to every call.
type Policy struct {
	// MaxRecvMsgSize bounds inbound messages.
	MaxRecvMsgSize int
	// SendSizeFactor scales the outbound ceiling to the payload of the call.
	SendSizeFactor int

	KeepaliveTime       time.Duration
	KeepaliveTimeout    time.Duration
	PermitWithoutStream bool
	// MinPingInterval is the fastest client ping rate a spoke server accepts.
	MinPingInterval time.Duration

	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	RetryableCodes    []codes.Code

	// CallTimeout bounds a single call including retries. Zero means no bound.
	CallTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRecvMsgSize:      defMaxMsgSize,
		SendSizeFactor:      2,
		KeepaliveTime:       65 * time.Second,
		KeepaliveTimeout:    60 * time.Second,
		PermitWithoutStream: true,
		MinPingInterval:     60 * time.Second,
		MaxAttempts:         5,
		InitialBackoff:      time.Second,
		MaxBackoff:          10 * time.Second,
		BackoffMultiplier:   2,
		RetryableCodes:      []codes.Code{codes.Unavailable},
	}
}

// SendLimit is the outbound message ceiling for a payload of the given size.
func (p Policy) SendLimit(payloadSize int) int {
	factor := p.SendSizeFactor
	if factor < 1 {
		factor = 1
	}

	return payloadSize*factor + framingOverhead
}

type serviceConfig struct {
	MethodConfig []methodConfig `json:"methodConfig"`
}

type methodConfig struct {
	Name        []methodName `json:"name"`
	RetryPolicy retryPolicy  `json:"retryPolicy"`
}

type methodName struct {
	Service string `json:"service"`
}

type retryPolicy struct {
	MaxAttempts          int      `json:"maxAttempts"`
	InitialBackoff       string   `json:"initialBackoff"`
	MaxBackoff           string   `json:"maxBackoff"`
	BackoffMultiplier    float64  `json:"backoffMultiplier"`
	RetryableStatusCodes []string `json:"retryableStatusCodes"`
}

// ServiceConfig renders the retry policy as a gRPC service config document.
func (p Policy) ServiceConfig() (string, error) {
	names := make([]string, 0, len(p.RetryableCodes))
	for _, c := range p.RetryableCodes {
		names = append(names, codeName(c))
	}

	cfg := serviceConfig{
		MethodConfig: []methodConfig{
			{
				Name: []methodName{{Service: ServiceName}},
				RetryPolicy: retryPolicy{
					MaxAttempts:          p.MaxAttempts,
					InitialBackoff:       durationString(p.InitialBackoff),
					MaxBackoff:           durationString(p.MaxBackoff),
					BackoffMultiplier:    p.BackoffMultiplier,
					RetryableStatusCodes: names,
				},
			},
		},
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// DialOptions builds the channel options for one call carrying payloadSize bytes.
func (p Policy) DialOptions(payloadSize int) ([]grpc.DialOption, error) {
	sc, err := p.ServiceConfig()
	if err != nil {
		return nil, err
	}

	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(p.MaxRecvMsgSize),
			grpc.MaxCallSendMsgSize(p.SendLimit(payloadSize)),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                p.KeepaliveTime,
			Timeout:             p.KeepaliveTimeout,
			PermitWithoutStream: p.PermitWithoutStream,
		}),
		grpc.WithDefaultServiceConfig(sc),
	}, nil
}

// ServerOptions are the matching options for a spoke server.
func (p Policy) ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(p.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(p.MaxRecvMsgSize),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             p.MinPingInterval,
			PermitWithoutStream: p.PermitWithoutStream,
		}),
	}
}

func durationString(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}

// codeName converts a code to its canonical name, e.g. DeadlineExceeded to DEADLINE_EXCEEDED.
func codeName(c codes.Code) string {
	var b strings.Builder
	for i, r := range c.String() {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}

	return b.String()
}
