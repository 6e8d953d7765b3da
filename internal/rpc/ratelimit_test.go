package rpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRateLimitInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/" + ServiceName + "/" + MethodListModels}
	ok := func(context.Context, interface{}) (interface{}, error) { return "ok", nil }

	// A very slow refill means only the burst gets through.
	limited := RateLimitUnaryServerInterceptor(0.001, 2)
	for i := 0; i < 2; i++ {
		if _, err := limited(context.Background(), nil, info, ok); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := limited(context.Background(), nil, info, ok); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("third call code = %s, want ResourceExhausted", status.Code(err))
	}

	unlimited := RateLimitUnaryServerInterceptor(0, 0)
	for i := 0; i < 100; i++ {
		if _, err := unlimited(context.Background(), nil, info, ok); err != nil {
			t.Fatalf("unlimited call %d: %v", i, err)
		}
	}
}
