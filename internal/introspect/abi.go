package introspect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/devblac/mintwatch/internal/mint"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ContractABI is a contract's function list in source order alongside the
// parsed go-ethereum ABI used for decoding and packing.
type ContractABI struct {
	entries []mint.Entry
	parsed  *abi.ABI
}

// Unknown is the placeholder for contracts without a usable ABI: a single
// entry with no name.
func Unknown() ContractABI {
	return ContractABI{entries: []mint.Entry{{}}}
}

// Parse decodes a JSON ABI array.
func Parse(raw []byte) (ContractABI, error) {
	var all []mint.Entry
	if err := json.Unmarshal(raw, &all); err != nil {
		return ContractABI{}, fmt.Errorf("decode abi entries: %w", err)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return ContractABI{}, fmt.Errorf("parse abi: %w", err)
	}

	entries := make([]mint.Entry, 0, len(all))
	for _, e := range all {
		if e.Type != "" && e.Type != "function" {
			continue
		}
		entries = append(entries, e)
	}
	return ContractABI{entries: entries, parsed: &parsed}, nil
}

// Known reports whether a real ABI backs this value.
func (c ContractABI) Known() bool {
	return c.parsed != nil
}

// Entries returns the function entries in source order.
func (c ContractABI) Entries() []mint.Entry {
	return c.entries
}

// Method looks up a method by its unique go-ethereum name.
func (c ContractABI) Method(name string) (abi.Method, bool) {
	if c.parsed == nil || name == "" {
		return abi.Method{}, false
	}
	m, ok := c.parsed.Methods[name]
	return m, ok
}

// Getter finds the zero-argument method declared as rawName in the source ABI.
func (c ContractABI) Getter(rawName string) (abi.Method, bool) {
	if c.parsed == nil {
		return abi.Method{}, false
	}
	for _, m := range c.parsed.Methods {
		if m.RawName == rawName && len(m.Inputs) == 0 {
			return m, true
		}
	}
	return abi.Method{}, false
}

// MatchByNameHeuristic returns the first entry whose name contains every
// required substring, compared case-insensitively.
func MatchByNameHeuristic(entries []mint.Entry, required ...string) (mint.Entry, bool) {
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		name := strings.ToLower(e.Name)
		hit := true
		for _, sub := range required {
			if !strings.Contains(name, strings.ToLower(sub)) {
				hit = false
				break
			}
		}
		if hit {
			return e, true
		}
	}
	return mint.Entry{}, false
}
