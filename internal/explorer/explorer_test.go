package explorer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblac/mintwatch/internal/cache"
	"github.com/ethereum/go-ethereum/common"
)

const mintABI = `[{"type":"function","name":"mint","inputs":[{"name":"qty","type":"uint256"}],"outputs":[],"stateMutability":"payable"}]`

var contract = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestContractABI(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{"module": q.Get("module"), "action": q.Get("action"), "address": q.Get("address"), "apikey": q.Get("apikey")}
		w.Write([]byte(`{"status":"1","message":"OK","result":"[{\"type\":\"function\",\"name\":\"mint\",\"inputs\":[]}]"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "KEY", nil)
	raw, err := c.ContractABI(context.Background(), contract)
	if err != nil {
		t.Fatalf("ContractABI error: %v", err)
	}
	if string(raw) != `[{"type":"function","name":"mint","inputs":[]}]` {
		t.Fatalf("unexpected abi %s", raw)
	}
	if gotQuery["module"] != "contract" || gotQuery["action"] != "getabi" || gotQuery["apikey"] != "KEY" {
		t.Fatalf("unexpected query %v", gotQuery)
	}
	if gotQuery["address"] != contract.Hex() {
		t.Fatalf("unexpected address %s", gotQuery["address"])
	}
}

func TestContractABIUnverified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Contract source code not verified"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", nil).ContractABI(context.Background(), contract)
	if !errors.Is(err, ErrUnverified) {
		t.Fatalf("expected ErrUnverified, got %v", err)
	}
}

func TestContractABIRateLimitedIsNotUnverified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", nil).ContractABI(context.Background(), contract)
	if err == nil || errors.Is(err, ErrUnverified) {
		t.Fatalf("expected generic error, got %v", err)
	}
}

func TestSafeGasPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") != "gasoracle" {
			t.Errorf("unexpected action %s", r.URL.Query().Get("action"))
		}
		w.Write([]byte(`{"status":"1","message":"OK","result":{"LastBlock":"19000000","SafeGasPrice":"21.5","ProposeGasPrice":"22","FastGasPrice":"25"}}`))
	}))
	defer srv.Close()

	price, err := NewClient(srv.URL, "", nil).SafeGasPrice(context.Background())
	if err != nil {
		t.Fatalf("SafeGasPrice error: %v", err)
	}
	if price.String() != "21.5" {
		t.Fatalf("expected 21.5, got %s", price)
	}
}

func TestSafeGasPriceErrors(t *testing.T) {
	cases := map[string]string{
		"notok":  `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`,
		"bad":    `{"status":"1","message":"OK","result":{"SafeGasPrice":"abc"}}`,
		"broken": `not json`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()
			if _, err := NewClient(srv.URL, "", nil).SafeGasPrice(context.Background()); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, "", nil).Ping(context.Background()); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestRateLimiter(t *testing.T) {
	tb := NewRateLimiter(2, 1) // capacity=2, 1 token/sec
	now := time.Now()
	tb.now = func() time.Time { return now }

	ctx := context.Background()
	if tb.Wait(ctx) != nil || tb.Wait(ctx) != nil {
		t.Fatalf("expected initial tokens available")
	}

	// The clock is frozen, so a third request can only end by cancellation.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := tb.Wait(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected third to be rate-limited, got %v", err)
	}

	// Refill after 1.5s -> should allow one
	now = now.Add(1500 * time.Millisecond)
	if err := tb.Wait(cancelled); err != nil {
		t.Fatalf("expected token after refill, got %v", err)
	}
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	tb := NewRateLimiter(1, 0.001)
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RateLimiter
	if err := nilLimiter.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter should not block: %v", err)
	}
	tb := NewRateLimiter(1, 0)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		if err := tb.Wait(cancelled); err != nil {
			t.Fatalf("zero rate should not limit: %v", err)
		}
	}
}

type countingFetcher struct {
	calls int
	raw   []byte
	err   error
}

func (f *countingFetcher) ContractABI(context.Context, common.Address) ([]byte, error) {
	f.calls++
	return f.raw, f.err
}

func TestRegistryCachesVerifiedABIs(t *testing.T) {
	remote := &countingFetcher{raw: []byte(mintABI)}
	reg := NewRegistry(remote, nil, cache.NewMemoryCache(), time.Hour, nil)

	for i := 0; i < 3; i++ {
		raw, err := reg.ContractABI(context.Background(), contract)
		if err != nil {
			t.Fatalf("ContractABI error: %v", err)
		}
		if string(raw) != mintABI {
			t.Fatalf("unexpected abi %s", raw)
		}
	}
	if remote.calls != 1 {
		t.Fatalf("expected 1 remote call, got %d", remote.calls)
	}
}

func TestRegistryDoesNotCacheUnverified(t *testing.T) {
	remote := &countingFetcher{err: ErrUnverified}
	reg := NewRegistry(remote, nil, cache.NewMemoryCache(), time.Hour, nil)

	for i := 0; i < 2; i++ {
		if _, err := reg.ContractABI(context.Background(), contract); !errors.Is(err, ErrUnverified) {
			t.Fatalf("expected ErrUnverified, got %v", err)
		}
	}
	if remote.calls != 2 {
		t.Fatalf("expected 2 remote calls, got %d", remote.calls)
	}
}

func TestRegistryPrefersOverrides(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, contract.Hex()+".json")
	if err := os.WriteFile(name, []byte(mintABI), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write ignored file: %v", err)
	}
	overrides, err := LoadOverrides([]string{dir})
	if err != nil {
		t.Fatalf("LoadOverrides error: %v", err)
	}
	if len(overrides) != 1 {
		t.Fatalf("expected 1 override, got %d", len(overrides))
	}

	remote := &countingFetcher{err: ErrUnverified}
	reg := NewRegistry(remote, overrides, nil, 0, nil)
	raw, err := reg.ContractABI(context.Background(), contract)
	if err != nil {
		t.Fatalf("ContractABI error: %v", err)
	}
	if string(raw) != mintABI || remote.calls != 0 {
		t.Fatalf("expected override without remote call, calls=%d", remote.calls)
	}
}

func TestLoadOverridesRejectsInvalidABI(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, contract.Hex()+".json"), []byte(`{broken`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadOverrides([]string{dir}); err == nil {
		t.Fatalf("expected parse error")
	}
}
