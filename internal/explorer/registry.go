package explorer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devblac/mintwatch/internal/cache"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABIFetcher is the remote ABI lookup, normally *Client.
type ABIFetcher interface {
	ContractABI(ctx context.Context, contract common.Address) ([]byte, error)
}

// Registry resolves contract ABIs from local overrides, then the cache,
// then the explorer. Only verified ABIs are cached.
type Registry struct {
	overrides map[common.Address][]byte
	cache     cache.Cache
	ttl       time.Duration
	remote    ABIFetcher
	log       *slog.Logger
}

// NewRegistry builds a Registry. overrides and c may be nil.
func NewRegistry(remote ABIFetcher, overrides map[common.Address][]byte, c cache.Cache, ttl time.Duration, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{overrides: overrides, cache: c, ttl: ttl, remote: remote, log: log}
}

// ContractABI implements the introspector's ABI source.
func (r *Registry) ContractABI(ctx context.Context, contract common.Address) ([]byte, error) {
	if raw, ok := r.overrides[contract]; ok {
		return raw, nil
	}

	key := cacheKey(contract)
	if r.cache != nil {
		val, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			return []byte(val), nil
		case !errors.Is(err, cache.ErrMiss):
			r.log.Warn("abi cache read failed", "contract", contract.Hex(), "error", err)
		}
	}

	raw, err := r.remote.ContractABI(ctx, contract)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, string(raw), r.ttl); err != nil {
			r.log.Warn("abi cache write failed", "contract", contract.Hex(), "error", err)
		}
	}
	return raw, nil
}

func cacheKey(contract common.Address) string {
	return "mintwatch:abi:" + strings.ToLower(contract.Hex())
}

// LoadOverrides loads ABI JSON files named <address>.json from the provided
// directories. Files whose name is not an address are ignored.
func LoadOverrides(dirs []string) (map[common.Address][]byte, error) {
	abis := map[common.Address][]byte{}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := strings.ToLower(d.Name())
			if d.IsDir() || !strings.HasSuffix(name, ".json") {
				return nil
			}
			stem := strings.TrimSuffix(name, ".json")
			if !common.IsHexAddress(stem) {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read abi %s: %w", path, err)
			}
			if _, err := abi.JSON(bytes.NewReader(data)); err != nil {
				return fmt.Errorf("parse abi %s: %w", path, err)
			}
			abis[common.HexToAddress(stem)] = data
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return abis, nil
}
