package grpcx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorInjectsConfiguredDeadline(t *testing.T) {
	ic := UnaryServerInterceptor(2 * time.Second)
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Call"}

	var deadline time.Time
	var ok bool
	_, err := ic(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		deadline, ok = ctx.Deadline()
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if !ok {
		t.Fatal("вызов без дедлайна должен получить таймаут из конфига")
	}
	if until := time.Until(deadline); until > 2*time.Second || until < time.Second {
		t.Fatalf("неожиданный дедлайн: +%v", until)
	}
}

func TestUnaryInterceptorKeepsCallerDeadline(t *testing.T) {
	ic := UnaryServerInterceptor(2 * time.Second)
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Call"}

	want := time.Now().Add(30 * time.Second)
	ctx, cancel := context.WithDeadline(context.Background(), want)
	defer cancel()

	_, _ = ic(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		got, ok := ctx.Deadline()
		if !ok || !got.Equal(want) {
			t.Fatalf("дедлайн вызывающего затёрт: %v", got)
		}
		return nil, nil
	})
}

func TestUnaryInterceptorZeroTimeoutFallsBackToDefault(t *testing.T) {
	ic := UnaryServerInterceptor(0)
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Call"}

	_, _ = ic(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Fatal("ожидался дефолтный таймаут")
		}
		if until := time.Until(deadline); until > defaultRequestTimeout {
			t.Fatalf("дедлайн дальше дефолта: +%v", until)
		}
		return nil, nil
	})
}

func TestUnaryInterceptorRecoversPanic(t *testing.T) {
	ic := UnaryServerInterceptor(time.Second)
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Call"}

	_, err := ic(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("паника должна превратиться в ошибку")
	}
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, ожидался Internal", status.Code(err))
	}
}

func TestUnaryInterceptorPassesThroughError(t *testing.T) {
	ic := UnaryServerInterceptor(time.Second)
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Call"}

	want := errors.New("nope")
	_, err := ic(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}
