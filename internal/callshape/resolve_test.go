package callshape

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/devblac/mintwatch/internal/mint"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var wallet = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func params(types ...string) []mint.Param {
	out := make([]mint.Param, 0, len(types))
	for _, t := range types {
		out = append(out, mint.Param{Type: t})
	}
	return out
}

func TestResolveSupportedShapes(t *testing.T) {
	tests := []struct {
		name   string
		inputs []mint.Param
		kind   Kind
		args   []any
	}{
		{"no args", nil, NoArgs, nil},
		{"address", params("address"), Recipient, []any{wallet}},
		{"uint256", params("uint256"), Amount, []any{big.NewInt(1)}},
		{"uint alias", params("uint"), Amount, []any{big.NewInt(1)}},
		{"uint8", params("uint8"), Amount, []any{uint8(1)}},
		{"uint32", params("uint32"), Amount, []any{uint32(1)}},
		{"address uint", params("address", "uint256"), RecipientAmount, []any{wallet, big.NewInt(1)}},
		{"uint address", params("uint64", "address"), AmountRecipient, []any{uint64(1), wallet}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Resolve(tt.inputs, wallet)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if s.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", s.Kind, tt.kind)
			}
			if len(s.Args) != len(tt.args) {
				t.Fatalf("args = %v, want %v", s.Args, tt.args)
			}
			for i := range tt.args {
				if !sameArg(s.Args[i], tt.args[i]) {
					t.Fatalf("arg %d = %#v, want %#v", i, s.Args[i], tt.args[i])
				}
			}
		})
	}
}

func TestResolveUnsupportedShapes(t *testing.T) {
	tests := [][]mint.Param{
		params("bool"),
		params("bool", "bool"),
		params("uint256[]"),
		params("int256"),
		params("bytes32[]", "address"),
		params("address", "address"),
		params("uint256", "uint256"),
		params("address", "uint256", "bytes"),
		params("uint7"),
	}
	for _, in := range tests {
		if _, err := Resolve(in, wallet); !errors.Is(err, ErrUnsupportedShape) {
			t.Fatalf("Resolve(%v) err = %v, want ErrUnsupportedShape", in, err)
		}
	}
}

func TestResolvedArgsPackAgainstABI(t *testing.T) {
	const claim = `[
		{"type":"function","name":"claim","stateMutability":"payable","inputs":[{"name":"to","type":"address"},{"name":"qty","type":"uint16"}],"outputs":[]}
	]`
	a, err := abi.JSON(strings.NewReader(claim))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, err := Resolve(params("address", "uint16"), wallet)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := a.Pack("claim", s.Args...); err != nil {
		t.Fatalf("resolved args do not pack: %v", err)
	}
}

func sameArg(got, want any) bool {
	if gb, ok := got.(*big.Int); ok {
		wb, ok := want.(*big.Int)
		return ok && gb.Cmp(wb) == 0
	}
	return got == want
}
