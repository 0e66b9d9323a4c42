package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devblac/mintwatch/internal/mint"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	// DefaultURL is the public Zora GraphQL endpoint.
	DefaultURL = "https://api.zora.co/graphql"
	// DefaultLimit is the number of recent mints requested per cycle.
	DefaultLimit = 500
)

const mintsQuery = `query RecentMints($limit: Int!) {
  mints(
    sort: { sortKey: TIME, sortDirection: DESC }
    pagination: { limit: $limit }
  ) {
    nodes {
      mint {
        collectionAddress
        price { nativePrice { decimal currency { address } } }
        transactionInfo { transactionHash }
      }
      token { collectionName }
    }
  }
}`

// Client queries recent mints, most recent first.
type Client struct {
	url    string
	limit  int
	client *http.Client
}

// NewClient builds a feed client. Zero values fall back to the defaults.
func NewClient(url string, limit int) *Client {
	if url == "" {
		url = DefaultURL
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Client{url: url, limit: limit, client: &http.Client{Timeout: 8 * time.Second}}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type mintsResponse struct {
	Data struct {
		Mints struct {
			Nodes []node `json:"nodes"`
		} `json:"mints"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

type node struct {
	Mint struct {
		CollectionAddress string `json:"collectionAddress"`
		Price             struct {
			NativePrice *struct {
				Decimal  *decimal.Decimal `json:"decimal"`
				Currency struct {
					Address string `json:"address"`
				} `json:"currency"`
			} `json:"nativePrice"`
		} `json:"price"`
		TransactionInfo struct {
			TransactionHash string `json:"transactionHash"`
		} `json:"transactionInfo"`
	} `json:"mint"`
	Token *struct {
		CollectionName string `json:"collectionName"`
	} `json:"token"`
}

// RecentMints returns the latest mint events in feed order. Nodes without a
// valid collection address are skipped.
func (c *Client) RecentMints(ctx context.Context) ([]mint.Event, error) {
	body, err := json.Marshal(gqlRequest{Query: mintsQuery, Variables: map[string]any{"limit": c.limit}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out mintsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("feed graphql: %s", strings.Join(msgs, "; "))
	}

	events := make([]mint.Event, 0, len(out.Data.Mints.Nodes))
	for _, n := range out.Data.Mints.Nodes {
		if ev, ok := n.event(); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// event maps a node to a mint event. Nodes without a collection address, a
// price or a currency address are dropped: a zero value would read as a free
// native mint.
func (n node) event() (mint.Event, bool) {
	if !common.IsHexAddress(n.Mint.CollectionAddress) {
		return mint.Event{}, false
	}
	p := n.Mint.Price.NativePrice
	if p == nil || p.Decimal == nil || !common.IsHexAddress(p.Currency.Address) {
		return mint.Event{}, false
	}
	ev := mint.Event{
		Collection: common.HexToAddress(n.Mint.CollectionAddress),
		TxHash:     common.HexToHash(n.Mint.TransactionInfo.TransactionHash),
		Price:      *p.Decimal,
		Currency:   common.HexToAddress(p.Currency.Address),
	}
	if n.Token != nil {
		ev.CollectionName = n.Token.CollectionName
	}
	return ev, true
}
