package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"loopline/internal/executor"
)

func TestRegistryResolvesWithFallback(t *testing.T) {
	called := ""
	reg := executor.NewRegistry("ceo", executor.Func(func(ctx context.Context, req executor.Request) (map[string]any, error) {
		called = "ceo"
		return nil, nil
	}))
	reg.Register("cto", executor.Func(func(ctx context.Context, req executor.Request) (map[string]any, error) {
		called = "cto"
		return nil, nil
	}))

	if _, err := reg.Resolve("cto").Execute(context.Background(), executor.Request{}); err != nil || called != "cto" {
		t.Fatalf("resolve cto: called=%s err=%v", called, err)
	}
	if _, err := reg.Resolve("nobody").Execute(context.Background(), executor.Request{}); err != nil || called != "ceo" {
		t.Fatalf("fallback: called=%s err=%v", called, err)
	}
	if reg.DefaultName() != "ceo" {
		t.Fatalf("default name = %s", reg.DefaultName())
	}
}

func TestFuncAdapterPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	f := executor.Func(func(ctx context.Context, req executor.Request) (map[string]any, error) {
		return nil, boom
	})
	if _, err := f.Execute(context.Background(), executor.Request{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestSimulatedReportsKind(t *testing.T) {
	res, err := executor.Simulated{}.Execute(context.Background(), executor.Request{Kind: "market_scan"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res["mode"] != "simulated" || res["kind"] != "market_scan" {
		t.Fatalf("unexpected result %v", res)
	}
}

func TestSimulatedHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := executor.Simulated{Delay: time.Hour}.Execute(ctx, executor.Request{Kind: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
