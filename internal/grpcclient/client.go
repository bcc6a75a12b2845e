// Package grpcclient provides the remote dice recognizer client
package grpcclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/nfnt/resize"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GriffinCanCode/dicepilot/internal/dice"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/perception"
	"github.com/GriffinCanCode/dicepilot/internal/resilience"
	"github.com/GriffinCanCode/dicepilot/internal/trace"
)

// Client calls the remote recognizer. It implements perception.Recognizer.
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	breaker *resilience.Breaker
}

var _ perception.Recognizer = (*Client)(nil)

// New dials the recognizer service. Extra options are appended to the defaults.
func New(addr string, breaker *resilience.Breaker, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
	}, opts...)

	conn, err := grpc.Dial(addr, dialOpts...)
	if err != nil {
		return nil, err
	}
	if breaker == nil {
		breaker = resilience.New(resilience.RecognizerConfig())
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn), breaker: breaker}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Breaker exposes the circuit breaker guarding calls.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// Ping checks that the recognizer reports SERVING. Unavailable errors are
// retried with backoff while the recognizer starts up.
func (c *Client) Ping(ctx context.Context) error {
	var resp *healthpb.HealthCheckResponse
	err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		cctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
		defer cancel()
		var err error
		resp, err = c.health.Check(cctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		return err
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.Precondition, "remote recognizer unreachable")
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return apperrors.Newf(apperrors.Precondition, "remote recognizer %s", resp.GetStatus())
	}
	return nil
}

// Recognize uploads the dice crop and parses the reading.
func (c *Client) Recognize(ctx context.Context, img image.Image) (perception.Reading, error) {
	req, err := EncodeRequest(img)
	if err != nil {
		return perception.Reading{}, err
	}
	resp, err := resilience.ExecuteWithResult(c.breaker, func() (*structpb.Struct, error) {
		out := new(structpb.Struct)
		if err := c.conn.Invoke(ctx, RecognizeMethod, req, out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		if _, ok := status.FromError(err); ok {
			return perception.Reading{}, apperrors.FromGRPCError(err)
		}
		return perception.Reading{}, err
	}
	return DecodeReading(resp)
}

// EncodeRequest downscales img and wraps it as a JPEG payload.
func EncodeRequest(img image.Image) (*structpb.Struct, error) {
	small := resize.Thumbnail(MaxUploadWidth, MaxUploadHeight, img, resize.Bilinear)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	b := small.Bounds()
	return structpb.NewStruct(map[string]any{
		"image":  base64.StdEncoding.EncodeToString(buf.Bytes()),
		"format": "jpeg",
		"width":  b.Dx(),
		"height": b.Dy(),
	})
}

// DecodeReading parses a recognizer response. Missing counts decode as zero,
// which the engine rejects as invalid; fractional counts are an error.
func DecodeReading(s *structpb.Struct) (perception.Reading, error) {
	f := s.GetFields()
	left, err := count(f["left"])
	if err != nil {
		return perception.Reading{}, fmt.Errorf("decode left: %w", err)
	}
	right, err := count(f["right"])
	if err != nil {
		return perception.Reading{}, fmt.Errorf("decode right: %w", err)
	}
	r := perception.Reading{
		Pair:       dice.Pair{Left: left, Right: right},
		Confidence: f["confidence"].GetNumberValue(),
	}
	if w := f["winner"].GetStringValue(); w != "" {
		side, err := dice.ParseSide(w)
		if err != nil {
			return perception.Reading{}, fmt.Errorf("decode winner: %w", err)
		}
		r.Winner = side
	}
	return r, nil
}

func count(v *structpb.Value) (int, error) {
	n := v.GetNumberValue()
	if n != math.Trunc(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("count %v is not an integer", n)
	}
	return int(n), nil
}
