package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devblac/mintwatch/internal/chain"
	"github.com/devblac/mintwatch/internal/config"
	"github.com/devblac/mintwatch/internal/explorer"
	"github.com/spf13/cobra"
)

const defaultHTTPTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and ping the RPC, explorer and cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d)\n", cfg.Version)

		wallet, err := chain.NewWallet(cfg.Wallet.PrivateKey, cfg.Wallet.Recipient)
		if err != nil {
			return fmt.Errorf("wallet invalid: %w", err)
		}
		fmt.Fprintf(out, "- wallet: sender %s recipient %s\n", wallet.Address.Hex(), wallet.Recipient.Hex())

		client := &http.Client{Timeout: defaultHTTPTimeout}
		failures := 0

		chainID, err := pingEVM(ctx, client, cfg.Chain.RPCURL)
		if err != nil {
			failures++
			fmt.Fprintf(out, "- rpc: ERROR %v\n", err)
		} else {
			fmt.Fprintf(out, "- rpc: chainId %s OK\n", chainID)
		}

		ex := explorer.NewClient(cfg.Explorer.BaseURL, cfg.Explorer.APIKey, nil)
		if gas, err := ex.SafeGasPrice(ctx); err != nil {
			failures++
			fmt.Fprintf(out, "- explorer: ERROR %v\n", err)
		} else {
			fmt.Fprintf(out, "- explorer: safe gas %s gwei OK\n", gas.String())
		}

		_, cachePing, cacheCloser, err := buildCache(cfg.Cache)
		switch {
		case err != nil:
			failures++
			fmt.Fprintf(out, "- cache (%s): ERROR %v\n", cfg.Cache.Type, err)
		case cachePing != nil:
			if err := cachePing(ctx); err != nil {
				failures++
				fmt.Fprintf(out, "- cache (%s): ERROR %v\n", cfg.Cache.Type, err)
			} else {
				fmt.Fprintf(out, "- cache (%s): OK\n", cfg.Cache.Type)
			}
		default:
			fmt.Fprintf(out, "- cache (%s): OK\n", cfg.Cache.Type)
		}
		if cacheCloser != nil {
			_ = cacheCloser.Close()
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d check(s) failed connectivity", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

func pingEVM(ctx context.Context, client *http.Client, url string) (string, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_chainId",
		"params":  []any{},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call eth_chainId: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var rpcResp struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return "", fmt.Errorf("decode rpc response: %w", err)
	}

	if rpcResp.Error != nil {
		return "", fmt.Errorf("rpc error: %s", rpcResp.Error.Message)
	}
	if rpcResp.Result == "" {
		return "", fmt.Errorf("empty chainId result")
	}

	return rpcResp.Result, nil
}
