package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/devblac/mintwatch/internal/callshape"
	"github.com/devblac/mintwatch/internal/dispatch"
	"github.com/devblac/mintwatch/internal/introspect"
	"github.com/devblac/mintwatch/internal/metrics"
	"github.com/devblac/mintwatch/internal/mint"
	"github.com/devblac/mintwatch/internal/sink"
	"github.com/devblac/mintwatch/internal/storage"
	"github.com/devblac/mintwatch/internal/supply"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cycle statuses.
const (
	StatusRejected = "rejected"
	StatusDryRun   = "dry-run"
	StatusMinted   = "minted"
	StatusFailed   = "failed"
)

// Feed returns recent mint events, most recent first.
type Feed interface {
	RecentMints(ctx context.Context) ([]mint.Event, error)
}

// BalanceReader reads an ERC-721 balance.
type BalanceReader interface {
	BalanceOf(ctx context.Context, collection, owner common.Address) (*big.Int, error)
}

// Resolver finds a candidate's mint method.
type Resolver interface {
	Resolve(ctx context.Context, c mint.Candidate) introspect.Resolution
}

// SupplyAuditor reads supply counters.
type SupplyAuditor interface {
	Audit(ctx context.Context, contract common.Address, contractABI introspect.ContractABI) supply.Supply
}

// GasOracle reports the network gas price in gwei.
type GasOracle interface {
	SafeGasPrice(ctx context.Context) (decimal.Decimal, error)
}

// Dispatcher submits a mint.
type Dispatcher interface {
	Dispatch(ctx context.Context, call dispatch.Call) mint.Outcome
}

// Journal persists cycle reports. It is never read by the gates.
type Journal interface {
	RecordCycle(ctx context.Context, rec storage.CycleRecord) error
	InsertSend(ctx context.Context, send storage.Send) error
}

// Target is a configured notification sink.
type Target struct {
	ID         string
	Sender     sink.Sender
	Rejections bool
}

// Deps are the collaborators of a Runner. Journal, Sinks and Metrics are optional.
type Deps struct {
	Feed       Feed
	Balances   BalanceReader
	Resolver   Resolver
	Auditor    SupplyAuditor
	Gas        GasOracle
	Dispatcher Dispatcher
	Journal    Journal
	Sinks      []Target
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Options configure evaluation.
type Options struct {
	Thresholds Thresholds
	Recipient  common.Address
	// Sender is the signing address. When set and different from Recipient,
	// its balance is gated as well.
	Sender     common.Address
	DryRun     bool
}

// Report summarises one cycle.
type Report struct {
	ID        string
	Started   time.Time
	Duration  time.Duration
	Candidate mint.Candidate
	Rejection *Reject
	Method    string
	Shape     string
	Supply    *supply.Supply
	GasPrice  *decimal.Decimal
	Outcome   *mint.Outcome
	DryRun    bool
}

// Status classifies the report.
func (r Report) Status() string {
	switch {
	case r.Rejection != nil:
		return StatusRejected
	case r.Outcome == nil:
		return StatusDryRun
	case r.Outcome.Succeeded():
		return StatusMinted
	default:
		return StatusFailed
	}
}

// Runner evaluates one candidate per cycle and dispatches at most one mint.
type Runner struct {
	deps   Deps
	opts   Options
	stageA Chain
	stageB Chain
	log    *slog.Logger
	now    func() time.Time
}

// NewRunner builds a runner from its collaborators.
func NewRunner(deps Deps, opts Options) (*Runner, error) {
	switch {
	case deps.Feed == nil:
		return nil, errors.New("runner: feed required")
	case deps.Balances == nil:
		return nil, errors.New("runner: balance reader required")
	case deps.Resolver == nil:
		return nil, errors.New("runner: resolver required")
	case deps.Auditor == nil:
		return nil, errors.New("runner: supply auditor required")
	case deps.Gas == nil:
		return nil, errors.New("runner: gas oracle required")
	case deps.Dispatcher == nil && !opts.DryRun:
		return nil, errors.New("runner: dispatcher required")
	}
	if opts.Recipient == (common.Address{}) {
		return nil, errors.New("runner: recipient required")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		deps:   deps,
		opts:   opts,
		stageA: StageA(opts.Thresholds, deps.Balances),
		stageB: StageB(opts.Thresholds),
		log:    log,
		now:    time.Now,
	}, nil
}

// RunOnce executes one full cycle. Every failure ends up in the report.
func (r *Runner) RunOnce(ctx context.Context) Report {
	c := &Cycle{
		ID:        uuid.NewString(),
		Started:   r.now(),
		Recipient: r.opts.Recipient,
		Sender:    r.opts.Sender,
		resolver:  r.deps.Resolver,
		auditor:   r.deps.Auditor,
		gas:       r.deps.Gas,
	}

	events, err := r.deps.Feed.RecentMints(ctx)
	if err == nil {
		c.Candidate, err = mint.Aggregate(events)
	}
	if err != nil {
		c.FeedErr = err
		if !errors.Is(err, mint.ErrNoData) {
			r.deps.Metrics.Errors()
		}
	}

	rep := r.evaluate(ctx, c)
	rep.Duration = r.now().Sub(c.Started)
	r.publish(ctx, rep)
	return rep
}

func (r *Runner) evaluate(ctx context.Context, c *Cycle) (rep Report) {
	rep = Report{ID: c.ID, Started: c.Started, Candidate: c.Candidate}
	defer func() {
		if c.audited() {
			s := *c.supply
			rep.Supply = &s
		}
		if c.gasPrice != nil {
			p := *c.gasPrice
			rep.GasPrice = &p
		}
		if c.resolved() {
			rep.Method = c.resolution.Method.Sig
		}
	}()

	if res := r.stageA.Evaluate(ctx, c); !res.Passed() {
		rep.Rejection = res.Reject
		return rep
	}
	if res := r.stageB.Evaluate(ctx, c); !res.Passed() {
		rep.Rejection = res.Reject
		return rep
	}

	method, _ := c.Resolved(ctx)
	shape, err := callshape.Resolve(method.Inputs(), c.Recipient)
	if err != nil {
		rep.Rejection = &Reject{Gate: "call-shape", Reason: ReasonUnsupportedShape, Detail: err.Error()}
		return rep
	}
	rep.Shape = shape.Kind.String()

	if r.opts.DryRun {
		rep.DryRun = true
		return rep
	}

	value, err := dispatch.ToWei(c.Candidate.Price)
	if err != nil {
		rep.Outcome = &mint.Outcome{Err: fmt.Errorf("mint value: %w", err)}
		return rep
	}
	out := r.deps.Dispatcher.Dispatch(ctx, dispatch.Call{
		Contract: c.Candidate.Contract,
		Method:   method.Method,
		Args:     shape.Args,
		Value:    value,
	})
	rep.Outcome = &out
	return rep
}

func (r *Runner) publish(ctx context.Context, rep Report) {
	status := rep.Status()
	m := r.deps.Metrics
	m.Cycle(status, rep.Duration)

	attrs := []any{
		"cycle", rep.ID,
		"contract", rep.Candidate.Contract.Hex(),
		"collection", rep.Candidate.CollectionName,
		"samples", rep.Candidate.SampleCount,
		"price", rep.Candidate.Price.String(),
	}
	if rep.Supply != nil {
		attrs = append(attrs, "total_supply", rep.Supply.Total.String(), "max_supply", rep.Supply.Max.String(), "ratio", ratioString(rep.Supply.Ratio()))
	}
	if rep.Method != "" {
		attrs = append(attrs, "method", rep.Method)
	}

	switch status {
	case StatusRejected:
		m.Rejected(rep.Rejection.Reason)
		r.log.Info("cycle rejected", append(attrs, "gate", rep.Rejection.Gate, "reason", rep.Rejection.Reason, "detail", rep.Rejection.Detail)...)
	case StatusDryRun:
		r.log.Info("dry run: mint skipped", append(attrs, "shape", rep.Shape)...)
	case StatusMinted:
		m.Minted(status)
		r.log.Info("mint dispatched", append(attrs, "status", rep.Outcome.Status, "block", rep.Outcome.BlockNumber, "tx", rep.Outcome.TxHash.Hex())...)
	default:
		m.Minted(status)
		m.Errors()
		r.log.Error("mint failed", append(attrs, "status", rep.Outcome.Status, "tx", rep.Outcome.TxHash.Hex(), "error", rep.Outcome.Err)...)
	}

	journaled := false
	if r.deps.Journal != nil {
		if err := r.deps.Journal.RecordCycle(ctx, rep.Record()); err != nil {
			m.Errors()
			r.log.Warn("journal write failed", "cycle", rep.ID, "error", err)
		} else {
			journaled = true
		}
	}

	payload := rep.Payload()
	for _, t := range r.deps.Sinks {
		if status == StatusRejected && !t.Rejections {
			continue
		}
		send := storage.Send{CycleID: rep.ID, SinkID: t.ID, Status: "sent", CreatedAt: r.now()}
		if err := t.Sender.Send(ctx, payload); err != nil {
			m.NotificationsDropped()
			r.log.Warn("sink send failed", "sink", t.ID, "cycle", rep.ID, "error", err)
			send.Status = "failed"
			send.Error = err.Error()
		} else {
			m.NotificationsSent()
		}
		if journaled {
			if err := r.deps.Journal.InsertSend(ctx, send); err != nil {
				r.log.Warn("journal send write failed", "sink", t.ID, "cycle", rep.ID, "error", err)
			}
		}
	}
}

// Record converts the report into a journal row.
func (r Report) Record() storage.CycleRecord {
	rec := storage.CycleRecord{
		ID:             r.ID,
		StartedAt:      r.Started,
		Status:         r.Status(),
		Contract:       contractHex(r.Candidate.Contract),
		CollectionName: r.Candidate.CollectionName,
		SampleCount:    r.Candidate.SampleCount,
		Price:          r.Candidate.Price.String(),
		Method:         r.Method,
	}
	if r.Rejection != nil {
		rec.Gate = r.Rejection.Gate
		rec.Reason = r.Rejection.Reason
		rec.Detail = r.Rejection.Detail
	}
	if r.Outcome != nil {
		rec.BlockNumber = r.Outcome.BlockNumber
		if r.Outcome.TxHash != (common.Hash{}) {
			rec.TxHash = r.Outcome.TxHash.Hex()
		}
		if r.Outcome.Err != nil {
			rec.Error = r.Outcome.Err.Error()
		}
	}
	return rec
}

// Payload converts the report into a sink payload.
func (r Report) Payload() sink.CyclePayload {
	rec := r.Record()
	return sink.CyclePayload{
		CycleID:        rec.ID,
		Status:         rec.Status,
		Contract:       rec.Contract,
		CollectionName: rec.CollectionName,
		SampleCount:    rec.SampleCount,
		Price:          rec.Price,
		Method:         rec.Method,
		Gate:           rec.Gate,
		Reason:         rec.Reason,
		Detail:         rec.Detail,
		TxHash:         rec.TxHash,
		BlockNumber:    rec.BlockNumber,
		Error:          rec.Error,
		DryRun:         r.DryRun,
	}
}

func contractHex(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}
