package supply

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/devblac/mintwatch/internal/introspect"
	"github.com/devblac/mintwatch/internal/mint"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMaxSupply stands in when a collection exposes no usable max supply
// getter. It keeps the ratio gate permissive.
const DefaultMaxSupply = 10000

// Caller invokes a zero-argument integer getter.
type Caller interface {
	CallInteger(ctx context.Context, contract common.Address, m abi.Method) (*big.Int, error)
}

// Supply holds the current and maximum token counts of a collection.
type Supply struct {
	Total *big.Int
	Max   *big.Int
}

// Ratio returns Total/Max, or nil when Max is zero.
func (s Supply) Ratio() *big.Rat {
	if s.Total == nil || s.Max == nil || s.Max.Sign() == 0 {
		return nil
	}
	return new(big.Rat).SetFrac(s.Total, s.Max)
}

// Auditor reads supply counters through heuristically matched getters.
type Auditor struct {
	caller Caller
	log    *slog.Logger
}

// NewAuditor builds an Auditor.
func NewAuditor(caller Caller, log *slog.Logger) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{caller: caller, log: log}
}

// Audit never fails: a missing or failing total supply read yields 0 and a
// missing, failing or zero max supply read yields DefaultMaxSupply.
func (a *Auditor) Audit(ctx context.Context, contract common.Address, contractABI introspect.ContractABI) Supply {
	getters := readOnlyGetters(contractABI)

	total := a.read(ctx, contract, contractABI, getters, "total", "supply")
	if total == nil {
		total = big.NewInt(0)
	}
	max := a.read(ctx, contract, contractABI, getters, "max", "supply")
	if max == nil || max.Sign() <= 0 {
		max = big.NewInt(DefaultMaxSupply)
	}
	return Supply{Total: total, Max: max}
}

func (a *Auditor) read(ctx context.Context, contract common.Address, contractABI introspect.ContractABI, getters []mint.Entry, required ...string) *big.Int {
	entry, ok := introspect.MatchByNameHeuristic(getters, required...)
	if !ok {
		return nil
	}
	m, ok := contractABI.Getter(entry.Name)
	if !ok {
		return nil
	}
	n, err := a.caller.CallInteger(ctx, contract, m)
	if err != nil {
		a.log.Debug("supply read failed", "contract", contract.Hex(), "method", entry.Name, "error", err)
		return nil
	}
	return n
}

func readOnlyGetters(contractABI introspect.ContractABI) []mint.Entry {
	var out []mint.Entry
	for _, e := range contractABI.Entries() {
		if e.Name != "" && e.ReadOnly() && len(e.Inputs) == 0 {
			out = append(out, e)
		}
	}
	return out
}
