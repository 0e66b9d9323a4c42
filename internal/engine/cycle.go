package engine

import (
	"context"
	"time"

	"github.com/devblac/mintwatch/internal/introspect"
	"github.com/devblac/mintwatch/internal/mint"
	"github.com/devblac/mintwatch/internal/supply"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Cycle is the evolving state of one evaluation. Introspection, supply and
// gas lookups run at most once, on first use.
type Cycle struct {
	ID        string
	Started   time.Time
	Candidate mint.Candidate
	FeedErr   error
	Recipient common.Address
	Sender    common.Address

	resolver Resolver
	auditor  SupplyAuditor
	gas      GasOracle

	resolution *introspect.Resolution
	supply     *supply.Supply
	gasPrice   *decimal.Decimal
	gasErr     error
}

// Holders returns the addresses a mint can land on: the recipient, and the
// signing address when it differs (no-argument and quantity-only mints go to
// msg.sender).
func (c *Cycle) Holders() []common.Address {
	holders := []common.Address{c.Recipient}
	if c.Sender != (common.Address{}) && c.Sender != c.Recipient {
		holders = append(holders, c.Sender)
	}
	return holders
}

// Resolution introspects the candidate contract.
func (c *Cycle) Resolution(ctx context.Context) introspect.Resolution {
	if c.resolution == nil {
		res := c.resolver.Resolve(ctx, c.Candidate)
		c.resolution = &res
	}
	return *c.resolution
}

// Supply audits the candidate's supply counters.
func (c *Cycle) Supply(ctx context.Context) supply.Supply {
	if c.supply == nil {
		s := c.auditor.Audit(ctx, c.Candidate.Contract, c.Resolution(ctx).ABI)
		c.supply = &s
	}
	return *c.supply
}

// GasPrice queries the gas oracle, in gwei.
func (c *Cycle) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	if c.gasPrice == nil && c.gasErr == nil {
		p, err := c.gas.SafeGasPrice(ctx)
		if err != nil {
			c.gasErr = err
		} else {
			c.gasPrice = &p
		}
	}
	if c.gasErr != nil {
		return decimal.Zero, c.gasErr
	}
	return *c.gasPrice, nil
}

// Resolved assembles the resolved method once Stage B has passed.
func (c *Cycle) Resolved(ctx context.Context) (mint.ResolvedMethod, bool) {
	res := c.Resolution(ctx)
	if res.Method == nil {
		return mint.ResolvedMethod{}, false
	}
	s := c.Supply(ctx)
	return mint.ResolvedMethod{
		Candidate:   c.Candidate,
		Method:      *res.Method,
		TotalSupply: s.Total,
		MaxSupply:   s.Max,
	}, true
}

func (c *Cycle) resolved() bool { return c.resolution != nil && c.resolution.Method != nil }
func (c *Cycle) audited() bool  { return c.supply != nil }
