package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

const sampleConfig = `version: 1

global:
  db_path: mintwatch.db
  polling_interval_seconds: 60
  confirm_timeout: 5m

chain:
  rpc_url: ${RPC_URL}

wallet:
  private_key: ${ETH_PRIVATE_KEY}
  # recipient defaults to the sender address
  # recipient: "0x0000000000000000000000000000000000000000"

feed:
  url: https://api.zora.co/graphql
  limit: 500

explorer:
  base_url: https://api.etherscan.io/api
  api_key: ${ETHERSCAN_API_KEY}
  rate_per_second: 5
  abi_dirs: [abis]

cache:
  type: memory
  ttl: 24h

gates:
  max_mint_price: 0.08
  min_sample_count: 5
  max_gas_price: 30
  min_mint_ratio: 0.5
  derivative_denylist: [goblin, town, ape, poop]

sinks:
  - id: ops-slack
    type: slack
    webhook_url: ${SLACK_WEBHOOK_URL}
`

const sampleEnv = `RPC_URL=https://mainnet.infura.io/v3/your-project-id
ETH_PRIVATE_KEY=
ETHERSCAN_API_KEY=
SLACK_WEBHOOK_URL=
LOG_LEVEL=info
`

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Scaffold a sample config, .env.example and ABI override directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		if err := os.MkdirAll(filepath.Join(dir, "abis"), 0o755); err != nil {
			return fmt.Errorf("create abis dir: %w", err)
		}

		files := []struct {
			name string
			body string
			mode fs.FileMode
		}{
			{"config.yaml", sampleConfig, 0o644},
			{".env.example", sampleEnv, 0o600},
		}
		out := cmd.OutOrStdout()
		for _, f := range files {
			path := filepath.Join(dir, f.name)
			if err := writeScaffold(path, f.body, f.mode, initForce); err != nil {
				if errors.Is(err, fs.ErrExist) {
					fmt.Fprintf(out, "skip %s (exists)\n", path)
					continue
				}
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", path)
		}
		return nil
	},
}

func writeScaffold(path, body string, mode fs.FileMode, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, mode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer f.Close()
	_, err = f.WriteString(body)
	return err
}
