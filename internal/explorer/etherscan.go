package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the Etherscan mainnet API endpoint.
const DefaultBaseURL = "https://api.etherscan.io/api"

// ErrUnverified is returned when the explorer has no verified source for a contract.
var ErrUnverified = errors.New("contract source code not verified")

// Client talks to an Etherscan-compatible API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *RateLimiter
}

// NewClient builds an explorer client. limiter may be nil.
func NewClient(baseURL, apiKey string, limiter *RateLimiter) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 8 * time.Second},
		limiter: limiter,
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type gasOracle struct {
	LastBlock       string `json:"LastBlock"`
	SafeGasPrice    string `json:"SafeGasPrice"`
	ProposeGasPrice string `json:"ProposeGasPrice"`
	FastGasPrice    string `json:"FastGasPrice"`
}

// ContractABI returns the verified ABI JSON of contract.
func (c *Client) ContractABI(ctx context.Context, contract common.Address) ([]byte, error) {
	env, err := c.get(ctx, url.Values{
		"module":  {"contract"},
		"action":  {"getabi"},
		"address": {contract.Hex()},
	})
	if err != nil {
		return nil, err
	}
	var result string
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("decode getabi result: %w", err)
	}
	if env.Status != "1" {
		if result == "" || strings.Contains(strings.ToLower(result), "not verified") {
			return nil, ErrUnverified
		}
		return nil, fmt.Errorf("getabi %s: %s", env.Message, result)
	}
	if strings.TrimSpace(result) == "" {
		return nil, ErrUnverified
	}
	return []byte(result), nil
}

// SafeGasPrice returns the oracle's safe gas price in gwei.
func (c *Client) SafeGasPrice(ctx context.Context) (decimal.Decimal, error) {
	env, err := c.get(ctx, url.Values{
		"module": {"gastracker"},
		"action": {"gasoracle"},
	})
	if err != nil {
		return decimal.Zero, err
	}
	if env.Status != "1" {
		var result string
		_ = json.Unmarshal(env.Result, &result)
		return decimal.Zero, fmt.Errorf("gasoracle %s: %s", env.Message, result)
	}
	var oracle gasOracle
	if err := json.Unmarshal(env.Result, &oracle); err != nil {
		return decimal.Zero, fmt.Errorf("decode gasoracle result: %w", err)
	}
	price, err := decimal.NewFromString(oracle.SafeGasPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse SafeGasPrice %q: %w", oracle.SafeGasPrice, err)
	}
	return price, nil
}

// Ping checks the API key and reachability through the gas oracle.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.SafeGasPrice(ctx)
	return err
}

func (c *Client) get(ctx context.Context, q url.Values) (envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return envelope{}, err
	}
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return envelope{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return envelope{}, fmt.Errorf("explorer status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("decode explorer response: %w", err)
	}
	return env, nil
}
