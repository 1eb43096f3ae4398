package api

import (
	"context"
	"net/url"
	"strings"
)

// Caller is the request surface service descriptors build on. Both the
// direct client and the gateway-proxy client satisfy it; which one a
// caller gets is decided once, at construction, by NewAuthClient.
type Caller interface {
	DoJSON(ctx context.Context, method, path string, body, out interface{}) error
	BaseURL() string
}

// NewAuthClient returns a Caller for the service at directAddress. When
// proxyURL is set, calls are routed through the API gateway at that URL
// instead of hitting the service directly; the gateway re-issues them
// upstream. The choice is made here, once; callers never inspect which
// variant they hold.
func NewAuthClient(cfg *Config, directAddress, proxyURL string) (Caller, error) {
	if proxyURL == "" {
		direct := *cfg
		direct.Address = directAddress
		return NewClient(&direct)
	}

	if _, err := url.Parse(proxyURL); err != nil {
		return nil, err
	}
	gatewayCfg := *cfg
	gatewayCfg.Address = proxyURL
	client, err := NewClient(&gatewayCfg)
	if err != nil {
		return nil, err
	}
	return &gatewayClient{client: client, upstream: directAddress}, nil
}

// gatewayClient routes requests through an API gateway. The upstream
// service address travels in a query parameter the gateway strips.
type gatewayClient struct {
	client   *Client
	upstream string
}

func (g *gatewayClient) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	proxied := path
	if g.upstream != "" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		proxied = path + sep + "upstream=" + url.QueryEscape(g.upstream)
	}
	return g.client.DoJSON(ctx, method, proxied, body, out)
}

func (g *gatewayClient) BaseURL() string {
	return g.client.BaseURL()
}
