package introspect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devblac/mintwatch/internal/mint"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// FallbackMethod is assumed when the sample transaction cannot be decoded.
const FallbackMethod = "mint"

// ABISource returns a contract's verified JSON ABI.
type ABISource interface {
	ContractABI(ctx context.Context, contract common.Address) ([]byte, error)
}

// TxSource returns the calldata of a transaction.
type TxSource interface {
	TransactionInput(ctx context.Context, hash common.Hash) ([]byte, error)
}

// Resolution is the introspection result. A nil Method means unresolved and
// Detail says why.
type Resolution struct {
	ABI     ContractABI
	Method  *abi.Method
	Decoded bool
	Detail  string
}

// Introspector maps a candidate to its mint method.
type Introspector struct {
	abis ABISource
	txs  TxSource
	log  *slog.Logger
}

// New builds an Introspector.
func New(abis ABISource, txs TxSource, log *slog.Logger) *Introspector {
	if log == nil {
		log = slog.Default()
	}
	return &Introspector{abis: abis, txs: txs, log: log}
}

// Resolve fetches the ABI, replays the sample transaction to learn which
// function real minters call, and selects that method. It never fails; all
// errors end up in Resolution.Detail.
func (i *Introspector) Resolve(ctx context.Context, c mint.Candidate) Resolution {
	contractABI := i.fetchABI(ctx, c.Contract)
	if !contractABI.Known() {
		return Resolution{ABI: contractABI, Detail: "abi unavailable"}
	}

	name, decoded := i.decodeMethod(ctx, contractABI, c.TxHash)
	m, ok := contractABI.Method(name)
	if !ok {
		return Resolution{
			ABI:     contractABI,
			Decoded: decoded,
			Detail:  fmt.Sprintf("method %q not in abi", name),
		}
	}
	return Resolution{ABI: contractABI, Method: &m, Decoded: decoded}
}

func (i *Introspector) fetchABI(ctx context.Context, contract common.Address) ContractABI {
	raw, err := i.abis.ContractABI(ctx, contract)
	if err != nil {
		i.log.Debug("abi fetch failed", "contract", contract.Hex(), "error", err)
		return Unknown()
	}
	parsed, err := Parse(raw)
	if err != nil {
		i.log.Debug("abi parse failed", "contract", contract.Hex(), "error", err)
		return Unknown()
	}
	return parsed
}

func (i *Introspector) decodeMethod(ctx context.Context, contractABI ContractABI, txHash common.Hash) (string, bool) {
	if txHash == (common.Hash{}) || i.txs == nil {
		return FallbackMethod, false
	}
	input, err := i.txs.TransactionInput(ctx, txHash)
	if err != nil {
		i.log.Debug("sample tx unavailable", "tx", txHash.Hex(), "error", err)
		return FallbackMethod, false
	}
	m, err := DecodeMethod(contractABI, input)
	if err != nil {
		i.log.Debug("sample tx not decodable", "tx", txHash.Hex(), "error", err)
		return FallbackMethod, false
	}
	return m.Name, true
}

// DecodeMethod matches calldata's 4-byte selector against the ABI.
func DecodeMethod(contractABI ContractABI, input []byte) (*abi.Method, error) {
	if contractABI.parsed == nil {
		return nil, fmt.Errorf("no abi")
	}
	if len(input) < 4 {
		return nil, fmt.Errorf("calldata too short: %d bytes", len(input))
	}
	m, err := contractABI.parsed.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("selector %x: %w", input[:4], err)
	}
	if _, err := m.Inputs.Unpack(input[4:]); err != nil {
		return nil, fmt.Errorf("unpack %s args: %w", m.Name, err)
	}
	return m, nil
}
