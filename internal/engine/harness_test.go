package engine

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/devblac/mintwatch/internal/dispatch"
	"github.com/devblac/mintwatch/internal/introspect"
	"github.com/devblac/mintwatch/internal/mint"
	"github.com/devblac/mintwatch/internal/sink"
	"github.com/devblac/mintwatch/internal/storage"
	"github.com/devblac/mintwatch/internal/supply"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const claimABI = `[
	{"type":"function","name":"claim","stateMutability":"payable","inputs":[
		{"name":"to","type":"address"},{"name":"quantity","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"MAX_SUPPLY","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	collectionA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	collectionB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	recipient   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	sender      = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	sampleTx    = common.HexToHash("0x0a")
)

type fakeFeed struct {
	events []mint.Event
	err    error
	calls  int
}

func (f *fakeFeed) RecentMints(context.Context) ([]mint.Event, error) {
	f.calls++
	return f.events, f.err
}

// fakeBalances answers for the recipient from balance and for any other
// owner from others.
type fakeBalances struct {
	balance *big.Int
	others  map[common.Address]*big.Int
	err     error
	calls   int
	owners  []common.Address
}

func (f *fakeBalances) BalanceOf(_ context.Context, _, owner common.Address) (*big.Int, error) {
	f.calls++
	f.owners = append(f.owners, owner)
	if f.err != nil {
		return nil, f.err
	}
	if owner == recipient {
		return new(big.Int).Set(f.balance), nil
	}
	if bal, ok := f.others[owner]; ok {
		return new(big.Int).Set(bal), nil
	}
	return nil, errors.New("unexpected owner")
}

type fakeABIs struct {
	raw   string
	err   error
	calls int
}

func (f *fakeABIs) ContractABI(context.Context, common.Address) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.raw), nil
}

type fakeTxs struct {
	input []byte
	calls int
}

func (f *fakeTxs) TransactionInput(context.Context, common.Hash) ([]byte, error) {
	f.calls++
	return f.input, nil
}

type fakeCaller struct {
	values map[string]*big.Int
	calls  int
}

func (f *fakeCaller) CallInteger(_ context.Context, _ common.Address, m abi.Method) (*big.Int, error) {
	f.calls++
	v, ok := f.values[m.RawName]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return v, nil
}

type fakeGas struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakeGas) SafeGasPrice(context.Context) (decimal.Decimal, error) {
	f.calls++
	return f.price, f.err
}

type fakeDispatcher struct {
	calls   []dispatch.Call
	outcome mint.Outcome
	onMint  func()
}

func (f *fakeDispatcher) Dispatch(_ context.Context, call dispatch.Call) mint.Outcome {
	f.calls = append(f.calls, call)
	if f.onMint != nil {
		f.onMint()
	}
	return f.outcome
}

type fakeJournal struct {
	cycles []storage.CycleRecord
	sends  []storage.Send
}

func (f *fakeJournal) RecordCycle(_ context.Context, rec storage.CycleRecord) error {
	f.cycles = append(f.cycles, rec)
	return nil
}

func (f *fakeJournal) InsertSend(_ context.Context, s storage.Send) error {
	f.sends = append(f.sends, s)
	return nil
}

type fakeSink struct {
	payloads []sink.CyclePayload
	err      error
}

func (f *fakeSink) Send(_ context.Context, p sink.CyclePayload) error {
	f.payloads = append(f.payloads, p)
	return f.err
}

// harness wires real introspection, supply auditing and call shaping to
// counting fakes at every external boundary.
type harness struct {
	feed       *fakeFeed
	balances   *fakeBalances
	abis       *fakeABIs
	txs        *fakeTxs
	caller     *fakeCaller
	gas        *fakeGas
	dispatcher *fakeDispatcher
	journal    *fakeJournal
	sink       *fakeSink
	opts       Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		feed:     &fakeFeed{events: scenarioEvents()},
		balances: &fakeBalances{balance: big.NewInt(0)},
		abis:     &fakeABIs{raw: claimABI},
		txs:      &fakeTxs{input: packCall(t, claimABI, "claim", recipient, big.NewInt(1))},
		caller: &fakeCaller{values: map[string]*big.Int{
			"totalSupply": big.NewInt(6000),
			"MAX_SUPPLY":  big.NewInt(10000),
		}},
		gas: &fakeGas{price: decimal.RequireFromString("20")},
		dispatcher: &fakeDispatcher{outcome: mint.Outcome{
			Status:      1,
			BlockNumber: 19000000,
			TxHash:      common.HexToHash("0xfeed"),
		}},
		journal: &fakeJournal{},
		sink:    &fakeSink{},
		opts: Options{
			Thresholds: Thresholds{
				MaxMintPrice:       decimal.RequireFromString("0.08"),
				MinSampleCount:     5,
				MaxGasPrice:        decimal.RequireFromString("30"),
				MinMintRatio:       decimal.RequireFromString("0.5"),
				DerivativeDenylist: []string{"goblin", "town", "ape", "poop"},
			},
			Recipient: recipient,
		},
	}
}

func (h *harness) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(Deps{
		Feed:       h.feed,
		Balances:   h.balances,
		Resolver:   introspect.New(h.abis, h.txs, nil),
		Auditor:    supply.NewAuditor(h.caller, nil),
		Gas:        h.gas,
		Dispatcher: h.dispatcher,
		Journal:    h.journal,
		Sinks:      []Target{{ID: "ops", Sender: h.sink}},
	}, h.opts)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	return r
}

// scenarioEvents returns 10 mints of collection A interleaved with 3 of B,
// most recent first.
func scenarioEvents() []mint.Event {
	var evs []mint.Event
	for i := 0; i < 10; i++ {
		evs = append(evs, mint.Event{
			Collection:     collectionA,
			Price:          decimal.RequireFromString("0.05"),
			CollectionName: "Alpha Pass",
			TxHash:         sampleTx,
		})
		if i < 3 {
			evs = append(evs, mint.Event{
				Collection:     collectionB,
				Price:          decimal.RequireFromString("0.01"),
				CollectionName: "Beta",
				TxHash:         common.HexToHash("0x0b"),
			})
		}
	}
	return evs
}

func packCall(t *testing.T, rawABI, method string, args ...any) []byte {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	input, err := parsed.Pack(method, args...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return input
}

type stubResolver struct{}

func (stubResolver) Resolve(context.Context, mint.Candidate) introspect.Resolution {
	return introspect.Resolution{ABI: introspect.Unknown(), Detail: "abi unavailable"}
}

type stubAuditor struct{}

func (stubAuditor) Audit(context.Context, common.Address, introspect.ContractABI) supply.Supply {
	return supply.Supply{Total: big.NewInt(0), Max: big.NewInt(supply.DefaultMaxSupply)}
}
