// Package callshape maps a mint method's parameter list to the arguments the
// bot passes. Only a fixed set of shapes is supported.
package callshape

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/devblac/mintwatch/internal/mint"
	"github.com/ethereum/go-ethereum/common"
)

// ErrUnsupportedShape is returned for any parameter list outside the whitelist.
var ErrUnsupportedShape = errors.New("unsupported argument shape")

// Quantity is the number of tokens requested by every mint.
const Quantity = 1

// Kind tags the supported shapes.
type Kind int

const (
	NoArgs Kind = iota
	Recipient
	Amount
	RecipientAmount
	AmountRecipient
)

func (k Kind) String() string {
	switch k {
	case NoArgs:
		return "()"
	case Recipient:
		return "(address)"
	case Amount:
		return "(uint)"
	case RecipientAmount:
		return "(address,uint)"
	case AmountRecipient:
		return "(uint,address)"
	default:
		return "unknown"
	}
}

// Shape is a resolved call: its kind and positional arguments.
type Shape struct {
	Kind Kind
	Args []any
}

var uintPattern = regexp.MustCompile(`^uint([0-9]*)$`)

// Resolve builds the argument tuple for inputs. It is pure and never touches
// the network.
func Resolve(inputs []mint.Param, recipient common.Address) (Shape, error) {
	switch len(inputs) {
	case 0:
		return Shape{Kind: NoArgs}, nil
	case 1:
		if isAddress(inputs[0]) {
			return Shape{Kind: Recipient, Args: []any{recipient}}, nil
		}
		if q, ok := quantity(inputs[0]); ok {
			return Shape{Kind: Amount, Args: []any{q}}, nil
		}
	case 2:
		if isAddress(inputs[0]) {
			if q, ok := quantity(inputs[1]); ok {
				return Shape{Kind: RecipientAmount, Args: []any{recipient, q}}, nil
			}
		}
		if q, ok := quantity(inputs[0]); ok && isAddress(inputs[1]) {
			return Shape{Kind: AmountRecipient, Args: []any{q, recipient}}, nil
		}
	}
	return Shape{}, fmt.Errorf("%w: (%s)", ErrUnsupportedShape, signature(inputs))
}

func isAddress(p mint.Param) bool {
	return p.Type == "address"
}

// quantity returns 1 typed the way go-ethereum packs an unsigned integer of
// the parameter's width.
func quantity(p mint.Param) (any, bool) {
	m := uintPattern.FindStringSubmatch(p.Type)
	if m == nil {
		return nil, false
	}
	bits := 256
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n == 0 || n > 256 || n%8 != 0 {
			return nil, false
		}
		bits = n
	}
	switch bits {
	case 8:
		return uint8(Quantity), true
	case 16:
		return uint16(Quantity), true
	case 32:
		return uint32(Quantity), true
	case 64:
		return uint64(Quantity), true
	default:
		return big.NewInt(Quantity), true
	}
}

func signature(inputs []mint.Param) string {
	types := make([]string, 0, len(inputs))
	for _, in := range inputs {
		types = append(types, in.Type)
	}
	return strings.Join(types, ",")
}
