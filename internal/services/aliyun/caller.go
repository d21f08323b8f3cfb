package aliyun

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk"
	sdkerrors "github.com/aliyun/alibaba-cloud-sdk-go/sdk/errors"
	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"

	"prdforge/internal/services"
)

// Credentials are the account access key pair.
type Credentials struct {
	AccessKeyID     string
	AccessKeySecret string
}

// Valid reports whether both halves are present.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.AccessKeyID) != "" && strings.TrimSpace(c.AccessKeySecret) != ""
}

// Request describes one POP RPC call.
type Request struct {
	Method  string
	Region  string
	Domain  string
	Version string
	Product string
	Action  string
	Query   map[string]string
	Form    map[string]string
}

// Caller performs signed POP RPC calls and returns the raw JSON body.
type Caller interface {
	Call(ctx context.Context, req Request) ([]byte, error)
}

// SDKCaller signs requests with the Alibaba Cloud SDK. SDK clients are
// created per region on first use so missing credentials only fail the calls
// that need them.
type SDKCaller struct {
	creds Credentials

	mu      sync.Mutex
	clients map[string]*sdk.Client
}

// NewSDKCaller constructs a caller for creds.
func NewSDKCaller(creds Credentials) *SDKCaller {
	return &SDKCaller{
		creds: Credentials{
			AccessKeyID:     strings.TrimSpace(creds.AccessKeyID),
			AccessKeySecret: strings.TrimSpace(creds.AccessKeySecret),
		},
		clients: make(map[string]*sdk.Client),
	}
}

func (c *SDKCaller) client(region string) (*sdk.Client, error) {
	if !c.creds.Valid() {
		return nil, services.Wrap(services.ErrConfiguration, "aliyun", "client", "access key required (ALIYUN_ACCESS_KEY_ID, ALIYUN_ACCESS_KEY_SECRET)", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[region]; ok {
		return client, nil
	}
	client, err := sdk.NewClientWithAccessKey(region, c.creds.AccessKeyID, c.creds.AccessKeySecret)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "aliyun", "client", "create sdk client", err)
	}
	c.clients[region] = client
	return client, nil
}

// Call issues req and returns the response body.
func (c *SDKCaller) Call(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := c.client(req.Region)
	if err != nil {
		return nil, err
	}

	common := requests.NewCommonRequest()
	common.Method = strings.ToUpper(firstNonEmpty(req.Method, http.MethodPost))
	common.Scheme = "https"
	common.Domain = req.Domain
	common.Version = req.Version
	common.Product = req.Product
	common.ApiName = req.Action
	for k, v := range req.Query {
		common.QueryParams[k] = v
	}
	for k, v := range req.Form {
		common.FormParams[k] = v
	}

	resp, err := client.ProcessCommonRequest(common)
	if err != nil {
		return nil, classifySDKError(req.Action, err)
	}
	if status := resp.GetHttpStatus(); status >= 300 {
		return nil, &services.UpstreamError{
			Provider:   "aliyun",
			StatusCode: status,
			Message:    strings.TrimSpace(resp.GetHttpContentString()),
		}
	}
	return resp.GetHttpContentBytes(), nil
}

func classifySDKError(action string, err error) error {
	var serverErr *sdkerrors.ServerError
	if errors.As(err, &serverErr) {
		return &services.UpstreamError{
			Provider:   "aliyun",
			StatusCode: serverErr.HttpStatus(),
			Code:       serverErr.ErrorCode(),
			Message:    serverErr.Message(),
		}
	}
	return services.Wrap(services.ErrTransient, "aliyun", action, "request failed", err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
