package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet is the bot's signing identity. Recipient receives minted tokens and
// is the owner checked by the balance gate.
type Wallet struct {
	key       *ecdsa.PrivateKey
	Address   common.Address
	Recipient common.Address
}

// NewWallet parses a hex private key (with or without 0x). An empty recipient
// defaults to the key's own address.
func NewWallet(keyHex, recipient string) (*Wallet, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if h == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(h)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	w := &Wallet{key: key, Address: addr, Recipient: addr}
	if recipient = strings.TrimSpace(recipient); recipient != "" {
		if !common.IsHexAddress(recipient) {
			return nil, fmt.Errorf("invalid recipient address %q", recipient)
		}
		w.Recipient = common.HexToAddress(recipient)
	}
	return w, nil
}

// Transactor builds signing options for chainID.
func (w *Wallet) Transactor(chainID *big.Int) (*bind.TransactOpts, error) {
	if chainID == nil {
		return nil, errors.New("chain id is nil")
	}
	return bind.NewKeyedTransactorWithChainID(w.key, chainID)
}
