package aliyun

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"prdforge/internal/services"
)

const (
	// DefaultTokenRegion hosts the CreateToken endpoint.
	DefaultTokenRegion = "cn-shanghai"

	tokenRefreshMargin = 60 * time.Second
	tokenFallbackTTL   = 24 * time.Hour
)

// Token is a short-lived NLS access token.
type Token struct {
	ID         string
	ExpireTime int64
}

// Expires returns the expiry as a time.
func (t Token) Expires() time.Time {
	return time.Unix(t.ExpireTime, 0)
}

type createTokenResponse struct {
	Token *struct {
		ID         string `json:"Id"`
		ExpireTime int64  `json:"ExpireTime"`
	} `json:"Token"`
	TokenID string `json:"TokenId"`
	ErrMsg  string `json:"ErrMsg"`
}

// TokenProvider fetches NLS tokens and caches them until shortly before
// expiry.
type TokenProvider struct {
	caller Caller
	region string
	now    func() time.Time

	mu     sync.Mutex
	cached Token
}

// TokenOption customizes the provider.
type TokenOption func(*TokenProvider)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(p *TokenProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewTokenProvider constructs a provider calling CreateToken in region.
func NewTokenProvider(caller Caller, region string, opts ...TokenOption) *TokenProvider {
	region = strings.TrimSpace(region)
	if region == "" {
		region = DefaultTokenRegion
	}
	p := &TokenProvider{caller: caller, region: region, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token returns a cached token or fetches a new one.
func (p *TokenProvider) Token(ctx context.Context) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.cached.ID != "" && now.Add(tokenRefreshMargin).Before(p.cached.Expires()) {
		return p.cached, nil
	}
	body, err := p.caller.Call(ctx, Request{
		Method:  http.MethodPost,
		Region:  p.region,
		Domain:  fmt.Sprintf("nls-meta.%s.aliyuncs.com", p.region),
		Version: "2019-02-28",
		Action:  "CreateToken",
	})
	if err != nil {
		return Token{}, err
	}
	var decoded createTokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Token{}, services.Wrap(services.ErrParse, "aliyun", "create token", "decode response", err)
	}
	var token Token
	switch {
	case decoded.Token != nil && decoded.Token.ID != "":
		token = Token{ID: decoded.Token.ID, ExpireTime: decoded.Token.ExpireTime}
	case decoded.TokenID != "":
		token = Token{ID: decoded.TokenID, ExpireTime: now.Add(tokenFallbackTTL).Unix()}
	default:
		msg := decoded.ErrMsg
		if msg == "" {
			msg = "response carried no token"
		}
		return Token{}, services.Wrap(services.ErrUpstream, "aliyun", "create token", msg, nil)
	}
	p.cached = token
	return token, nil
}

// GatewayURL returns the NLS WebSocket endpoint for region.
func GatewayURL(region string) string {
	region = strings.TrimSpace(region)
	if region == "" {
		region = DefaultTokenRegion
	}
	return fmt.Sprintf("wss://nls-gateway.%s.aliyuncs.com/ws/v1", region)
}
