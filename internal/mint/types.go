package mint

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrNoData signals that the feed produced no events for this cycle.
var ErrNoData = errors.New("no mint data")

// NativeCurrency is the currency address the feed reports for ETH-priced mints.
var NativeCurrency = common.Address{}

// Event is one observed mint as reported by the feed.
type Event struct {
	Collection     common.Address
	Price          decimal.Decimal
	Currency       common.Address
	CollectionName string
	TxHash         common.Hash
}

// Candidate is the single collection chosen for evaluation in one cycle.
type Candidate struct {
	Contract       common.Address
	CollectionName string
	Price          decimal.Decimal
	Currency       common.Address
	SampleCount    int
	TxHash         common.Hash
}

// Param is one typed input of an ABI function.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Entry is one exposed contract function. An empty Name marks the
// placeholder produced for contracts without a verified ABI.
type Entry struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Inputs          []Param `json:"inputs"`
	StateMutability string  `json:"stateMutability"`
	Constant        bool    `json:"constant"`
}

// ReadOnly reports whether the entry can be invoked with eth_call.
func (e Entry) ReadOnly() bool {
	switch e.StateMutability {
	case "view", "pure":
		return true
	}
	return e.Constant
}

// ResolvedMethod is a candidate whose mint method and supply are known.
type ResolvedMethod struct {
	Candidate
	Method      abi.Method
	TotalSupply *big.Int
	MaxSupply   *big.Int
}

// Inputs returns the method's parameter list.
func (r ResolvedMethod) Inputs() []Param {
	out := make([]Param, 0, len(r.Method.Inputs))
	for _, in := range r.Method.Inputs {
		out = append(out, Param{Name: in.Name, Type: in.Type.String()})
	}
	return out
}

// Outcome is the terminal result of a dispatched mint.
type Outcome struct {
	Status      uint64
	BlockNumber uint64
	TxHash      common.Hash
	Err         error
}

// Succeeded reports a mined transaction with status 1.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Status == 1
}
