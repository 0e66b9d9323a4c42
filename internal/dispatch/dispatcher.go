package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/devblac/mintwatch/internal/chain"
	"github.com/devblac/mintwatch/internal/mint"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

var (
	// ErrFractionalWei is returned when a price has more than 18 decimals.
	ErrFractionalWei = errors.New("price is not a whole number of wei")
	// ErrReverted marks a mined transaction with status 0.
	ErrReverted = errors.New("transaction reverted")
)

// DefaultConfirmTimeout bounds how long a mint waits for its receipt.
const DefaultConfirmTimeout = 5 * time.Minute

// Call is one payable invocation of a resolved mint method.
type Call struct {
	Contract common.Address
	Method   abi.Method
	Args     []any
	Value    *big.Int
}

// Dispatcher submits mint transactions and waits for them to be mined.
type Dispatcher struct {
	backend        chain.Backend
	wallet         *chain.Wallet
	chainID        *big.Int
	confirmTimeout time.Duration
}

// New builds a Dispatcher for chainID.
func New(backend chain.Backend, wallet *chain.Wallet, chainID *big.Int, confirmTimeout time.Duration) *Dispatcher {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &Dispatcher{
		backend:        backend,
		wallet:         wallet,
		chainID:        chainID,
		confirmTimeout: confirmTimeout,
	}
}

// Dispatch sends the call and reports the receipt. Submission, revert and
// confirmation failures are returned in Outcome.Err.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) mint.Outcome {
	opts, err := d.wallet.Transactor(d.chainID)
	if err != nil {
		return mint.Outcome{Err: fmt.Errorf("transactor: %w", err)}
	}
	opts.Context = ctx
	opts.Value = call.Value

	single := abi.ABI{Methods: map[string]abi.Method{call.Method.Name: call.Method}}
	contract := bind.NewBoundContract(call.Contract, single, d.backend, d.backend, d.backend)

	tx, err := contract.Transact(opts, call.Method.Name, call.Args...)
	if err != nil {
		return mint.Outcome{Err: fmt.Errorf("submit %s: %w", call.Method.RawName, err)}
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.confirmTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, d.backend, tx)
	if err != nil {
		return mint.Outcome{TxHash: tx.Hash(), Err: fmt.Errorf("wait for receipt: %w", err)}
	}

	out := mint.Outcome{
		Status: receipt.Status,
		TxHash: receipt.TxHash,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		out.Err = ErrReverted
	}
	return out
}

// ToWei converts a native-currency amount to wei.
func ToWei(amount decimal.Decimal) (*big.Int, error) {
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	wei := amount.Shift(18)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s", ErrFractionalWei, amount)
	}
	return wei.BigInt(), nil
}
