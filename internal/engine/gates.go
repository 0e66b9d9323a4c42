package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/devblac/mintwatch/internal/mint"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Rejection reasons.
const (
	ReasonFeedError        = "feed-error"
	ReasonInsufficient     = "insufficient-sample"
	ReasonPriceTooHigh     = "price-too-high"
	ReasonNonNative        = "non-native-currency"
	ReasonDerivativeName   = "derivative-name"
	ReasonAlreadyMinted    = "already-minted"
	ReasonNoMethod         = "no-abi-or-method"
	ReasonSupplyReadFailed = "supply-read-failed"
	ReasonBelowMintRatio   = "below-mint-ratio"
	ReasonTooManyArguments = "too-many-arguments"
	ReasonGasTooHigh       = "gas-too-high"
	ReasonUnsupportedShape = "unsupported-argument-shape"
)

// Thresholds parameterise the gates.
type Thresholds struct {
	MaxMintPrice   decimal.Decimal
	MinSampleCount int
	// MaxGasPrice is in gwei.
	MaxGasPrice decimal.Decimal
	// MinMintRatio of zero disables the ratio gate.
	MinMintRatio decimal.Decimal
	// DerivativeDenylist of length zero disables the name gate.
	DerivativeDenylist []string
}

// Gate is one named eligibility check.
type Gate struct {
	Name   string
	Reason string
	Check  func(ctx context.Context, c *Cycle) (ok bool, detail string)
}

// Reject describes the gate that stopped a cycle.
type Reject struct {
	Gate   string `json:"gate"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func (r Reject) Error() string {
	if r.Detail == "" {
		return r.Reason
	}
	return r.Reason + ": " + r.Detail
}

// Result is Pass when Reject is nil.
type Result struct {
	Reject *Reject
}

// Passed reports whether every gate accepted.
func (r Result) Passed() bool { return r.Reject == nil }

// Chain is an ordered list of gates.
type Chain []Gate

// Evaluate runs gates in order and stops at the first failure.
func (ch Chain) Evaluate(ctx context.Context, c *Cycle) Result {
	for _, g := range ch {
		ok, detail := g.Check(ctx, c)
		if !ok {
			return Result{Reject: &Reject{Gate: g.Name, Reason: g.Reason, Detail: detail}}
		}
	}
	return Result{}
}

// StageA builds the candidate gates. They need no ABI.
func StageA(th Thresholds, balances BalanceReader) Chain {
	chain := Chain{
		{Name: "contract-present", Reason: ReasonFeedError, Check: func(_ context.Context, c *Cycle) (bool, string) {
			if c.FeedErr != nil {
				return false, c.FeedErr.Error()
			}
			if c.Candidate.Contract == (common.Address{}) {
				return false, "no contract address"
			}
			return true, ""
		}},
		{Name: "sample-count", Reason: ReasonInsufficient, Check: func(_ context.Context, c *Cycle) (bool, string) {
			if c.Candidate.SampleCount < th.MinSampleCount {
				return false, fmt.Sprintf("%d < %d", c.Candidate.SampleCount, th.MinSampleCount)
			}
			return true, ""
		}},
		{Name: "mint-price", Reason: ReasonPriceTooHigh, Check: func(_ context.Context, c *Cycle) (bool, string) {
			if c.Candidate.Price.GreaterThan(th.MaxMintPrice) {
				return false, fmt.Sprintf("%s > %s", c.Candidate.Price, th.MaxMintPrice)
			}
			return true, ""
		}},
		{Name: "native-currency", Reason: ReasonNonNative, Check: func(_ context.Context, c *Cycle) (bool, string) {
			if c.Candidate.Currency != mint.NativeCurrency {
				return false, c.Candidate.Currency.Hex()
			}
			return true, ""
		}},
	}

	if len(th.DerivativeDenylist) > 0 {
		denylist := make([]string, 0, len(th.DerivativeDenylist))
		for _, w := range th.DerivativeDenylist {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				denylist = append(denylist, w)
			}
		}
		chain = append(chain, Gate{Name: "derivative-name", Reason: ReasonDerivativeName, Check: func(_ context.Context, c *Cycle) (bool, string) {
			name := strings.ToLower(c.Candidate.CollectionName)
			for _, w := range denylist {
				if strings.Contains(name, w) {
					return false, fmt.Sprintf("%q contains %q", c.Candidate.CollectionName, w)
				}
			}
			return true, ""
		}})
	}

	// Both the recipient and the sender must hold nothing. An unreadable
	// balance rejects too: minting blind could mint twice.
	chain = append(chain, Gate{Name: "balance", Reason: ReasonAlreadyMinted, Check: func(ctx context.Context, c *Cycle) (bool, string) {
		for _, owner := range c.Holders() {
			bal, err := balances.BalanceOf(ctx, c.Candidate.Contract, owner)
			if err != nil {
				return false, fmt.Sprintf("balance of %s unavailable: %v", owner.Hex(), err)
			}
			if bal.Sign() != 0 {
				return false, fmt.Sprintf("%s holds %s", owner.Hex(), bal)
			}
		}
		return true, ""
	}})
	return chain
}

// StageB builds the resolved-method gates. Each gate pulls the data it needs
// from the cycle, so a rejection leaves later lookups unperformed.
func StageB(th Thresholds) Chain {
	chain := Chain{
		{Name: "method-resolved", Reason: ReasonNoMethod, Check: func(ctx context.Context, c *Cycle) (bool, string) {
			res := c.Resolution(ctx)
			if res.Method == nil {
				return false, res.Detail
			}
			return true, ""
		}},
		{Name: "supply-read", Reason: ReasonSupplyReadFailed, Check: func(ctx context.Context, c *Cycle) (bool, string) {
			if c.Supply(ctx).Total.Sign() == 0 {
				return false, "total supply is 0"
			}
			return true, ""
		}},
	}

	if th.MinMintRatio.IsPositive() {
		floor := th.MinMintRatio.Rat()
		chain = append(chain, Gate{Name: "mint-ratio", Reason: ReasonBelowMintRatio, Check: func(ctx context.Context, c *Cycle) (bool, string) {
			s := c.Supply(ctx)
			ratio := s.Ratio()
			if ratio == nil || ratio.Cmp(floor) < 0 {
				return false, fmt.Sprintf("%s/%s < %s", s.Total, s.Max, th.MinMintRatio)
			}
			return true, ""
		}})
	}

	chain = append(chain,
		Gate{Name: "argument-count", Reason: ReasonTooManyArguments, Check: func(ctx context.Context, c *Cycle) (bool, string) {
			if n := len(c.Resolution(ctx).Method.Inputs); n > 2 {
				return false, fmt.Sprintf("%d inputs", n)
			}
			return true, ""
		}},
		Gate{Name: "gas-price", Reason: ReasonGasTooHigh, Check: func(ctx context.Context, c *Cycle) (bool, string) {
			price, err := c.GasPrice(ctx)
			if err != nil {
				return false, "gas price unavailable: " + err.Error()
			}
			if price.GreaterThan(th.MaxGasPrice) {
				return false, fmt.Sprintf("%s gwei > %s gwei", price, th.MaxGasPrice)
			}
			return true, ""
		}},
	)
	return chain
}

func ratioString(r *big.Rat) string {
	if r == nil {
		return ""
	}
	return r.FloatString(4)
}
