package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/sjson"

	"github.com/GPTx-global/feedkeeper/oracle/config"
	"github.com/GPTx-global/feedkeeper/oracle/log"
	"github.com/GPTx-global/feedkeeper/oracle/telemetry"
	"github.com/GPTx-global/feedkeeper/oracle/types"
)

// DefaultTimeout bounds one request to one gateway.
const DefaultTimeout = 5 * time.Second

const maxResponseSize = 1 << 20

var (
	once       sync.Once
	httpClient *http.Client
)

func sharedClient() *http.Client {
	once.Do(func() {
		transport := new(http.Transport)
		transport.MaxIdleConns = 1000
		transport.MaxIdleConnsPerHost = 100
		transport.IdleConnTimeout = 90 * time.Second
		transport.MaxConnsPerHost = 200

		httpClient = new(http.Client)
		httpClient.Transport = transport
	})

	return httpClient
}

// Request identifies the beacon whose signed data is requested.
type Request struct {
	Airnode  common.Address
	Template types.Template
}

// Client obtains signed data from an ordered list of airnode gateways.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{http: sharedClient(), timeout: timeout}
}

// FetchSignedData tries every gateway in order and returns the first response that
// parses and carries a valid airnode signature. It does not retry.
func (c *Client) FetchSignedData(ctx context.Context, gateways []config.Gateway, req Request) (*types.SignedData, error) {
	logger := log.With("template-id", req.Template.ID.Hex())

	for _, gw := range gateways {
		target := joinURL(gw.URL, req.Template.EndpointID.Hex())

		body, err := c.post(ctx, target, gw.APIKey, req.Template.Parameters)
		if err != nil {
			logger.Errorf("Failed to make signed data gateway request for gateway: %q. Error: %q", target, err.Error())
			telemetry.IncrCounter(telemetry.MetricKeyGatewayFailure, telemetry.NewLabel("reason", "request"))
			continue
		}

		data, verr := ParseSignedData(body)
		if verr != nil {
			logger.Errorf("Failed to parse signed data response for gateway: %q. Error: %q", target, verr.Error())
			telemetry.IncrCounter(telemetry.MetricKeyGatewayFailure, telemetry.NewLabel("reason", "schema"))
			continue
		}

		if err := data.Verify(req.Airnode, req.Template.ID); err != nil {
			logger.Errorf("Invalid signed data response for gateway: %q. Error: %q", target, err.Error())
			telemetry.IncrCounter(telemetry.MetricKeyGatewayFailure, telemetry.NewLabel("reason", "signature"))
			continue
		}

		logger.Debugf("Using the following signed data response: %q", body)
		return data, nil
	}

	return nil, types.ErrAllGatewaysFailed
}

func (c *Client) post(ctx context.Context, target, apiKey string, parameters []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := sjson.SetBytes([]byte(`{}`), "encodedParameters", hexutil.Encode(parameters))
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code %d: %s", res.StatusCode, compact(body))
	}

	return body, nil
}

// joinURL appends path to base with exactly one slash between them.
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func compact(body []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return string(body)
	}

	return buf.String()
}
