package aliyun

import (
	"context"
	"errors"
	"testing"
	"time"

	"prdforge/internal/services"
)

type fakeCaller struct {
	bodies   [][]byte
	requests []Request
}

func (f *fakeCaller) Call(_ context.Context, req Request) ([]byte, error) {
	f.requests = append(f.requests, req)
	if len(f.bodies) == 0 {
		return nil, errors.New("no response queued")
	}
	body := f.bodies[0]
	f.bodies = f.bodies[1:]
	return body, nil
}

func TestTokenProviderCachesUntilMargin(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	caller := &fakeCaller{bodies: [][]byte{
		[]byte(`{"Token":{"Id":"tok-1","ExpireTime":1700000300}}`),
		[]byte(`{"Token":{"Id":"tok-2","ExpireTime":1700090000}}`),
	}}
	provider := NewTokenProvider(caller, "", WithClock(func() time.Time { return now }))

	tok, err := provider.Token(context.Background())
	if err != nil || tok.ID != "tok-1" {
		t.Fatalf("first token = %+v, %v", tok, err)
	}
	req := caller.requests[0]
	if req.Action != "CreateToken" || req.Domain != "nls-meta.cn-shanghai.aliyuncs.com" || req.Version != "2019-02-28" {
		t.Fatalf("unexpected request %+v", req)
	}

	now = now.Add(200 * time.Second)
	if tok, _ = provider.Token(context.Background()); tok.ID != "tok-1" {
		t.Fatalf("expected cached token, got %q", tok.ID)
	}

	now = now.Add(50 * time.Second)
	if tok, _ = provider.Token(context.Background()); tok.ID != "tok-2" {
		t.Fatalf("expected refreshed token inside the refresh margin, got %q", tok.ID)
	}
	if len(caller.requests) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(caller.requests))
	}
}

func TestTokenProviderFallbackTokenID(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	caller := &fakeCaller{bodies: [][]byte{[]byte(`{"TokenId":"legacy"}`)}}
	provider := NewTokenProvider(caller, "cn-beijing", WithClock(func() time.Time { return now }))
	tok, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if tok.ID != "legacy" || tok.ExpireTime != now.Add(24*time.Hour).Unix() {
		t.Fatalf("unexpected token %+v", tok)
	}
}

func TestTokenProviderMissingToken(t *testing.T) {
	caller := &fakeCaller{bodies: [][]byte{[]byte(`{"ErrMsg":"denied"}`)}}
	_, err := NewTokenProvider(caller, "").Token(context.Background())
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestSDKCallerRequiresCredentials(t *testing.T) {
	_, err := NewSDKCaller(Credentials{AccessKeyID: "id"}).Call(context.Background(), Request{Region: "cn-shanghai"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGatewayURL(t *testing.T) {
	if got := GatewayURL("cn-beijing"); got != "wss://nls-gateway.cn-beijing.aliyuncs.com/ws/v1" {
		t.Fatalf("unexpected url %q", got)
	}
}
