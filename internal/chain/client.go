package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend captures the subset of ethclient used for reads, the mint write, and
// receipt polling.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// RPCClient is a thin wrapper over ethclient.Client that satisfies Backend.
type RPCClient struct {
	*ethclient.Client
}

// NewRPCClient builds an RPC client to an EVM node.
func NewRPCClient(rpcURL string) (*RPCClient, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return &RPCClient{Client: c}, nil
}

var erc721ABI abi.ABI

func init() {
	const balanceOf = `[{"inputs":[{"internalType":"address","name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
	a, err := abi.JSON(strings.NewReader(balanceOf))
	if err != nil {
		panic(err)
	}
	erc721ABI = a
}

// Reader performs the read-only chain calls of a cycle.
type Reader struct {
	backend Backend
}

// NewReader wraps a backend.
func NewReader(backend Backend) *Reader {
	return &Reader{backend: backend}
}

// BalanceOf returns how many tokens of collection the owner holds.
func (r *Reader) BalanceOf(ctx context.Context, collection, owner common.Address) (*big.Int, error) {
	c := bind.NewBoundContract(collection, erc721ABI, r.backend, nil, nil)
	var out []interface{}
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	n, err := firstInteger(out)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return n, nil
}

// CallInteger invokes a zero-argument getter and coerces its first output.
func (r *Reader) CallInteger(ctx context.Context, contract common.Address, m abi.Method) (*big.Int, error) {
	single := abi.ABI{Methods: map[string]abi.Method{m.Name: m}}
	c := bind.NewBoundContract(contract, single, r.backend, nil, nil)
	var out []interface{}
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, m.Name); err != nil {
		return nil, fmt.Errorf("call %s: %w", m.RawName, err)
	}
	n, err := firstInteger(out)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", m.RawName, err)
	}
	return n, nil
}

// TransactionInput returns the calldata of a known transaction.
func (r *Reader) TransactionInput(ctx context.Context, hash common.Hash) ([]byte, error) {
	tx, _, err := r.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", hash.Hex(), err)
	}
	return tx.Data(), nil
}

// Ping checks node connectivity.
func (r *Reader) Ping(ctx context.Context) error {
	_, err := r.backend.HeaderByNumber(ctx, nil)
	return err
}

var errNotInteger = errors.New("output is not an integer")

func firstInteger(out []interface{}) (*big.Int, error) {
	if len(out) == 0 {
		return nil, errors.New("empty output")
	}
	if n, ok := ToBig(out[0]); ok {
		return n, nil
	}
	return nil, fmt.Errorf("%w: %T", errNotInteger, out[0])
}

// ToBig converts any integer type go-ethereum unpacks into a *big.Int.
func ToBig(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Int).Set(n), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	default:
		return nil, false
	}
}
