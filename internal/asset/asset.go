// Package asset parses and classifies the monitored token identifiers.
package asset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Family is a coarse guess at the chain an identifier belongs to. It is informational only.
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
	FamilyOther  Family = "other"
)

var (
	// ErrEmpty indicates a blank identifier.
	ErrEmpty = errors.New("asset: empty identifier")
	// ErrInvalid indicates an identifier that cannot be used in a quote request path.
	ErrInvalid = errors.New("asset: invalid identifier")
)

// ParseList splits a comma separated list, trimming blanks and dropping
// duplicates while preserving the first-seen order.
func ParseList(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			id := strings.TrimSpace(part)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Validate rejects identifiers that cannot name a token. Identifiers are otherwise opaque.
func Validate(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmpty
	}
	if strings.ContainsAny(id, "/?#, \t\n") {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalid, id)
	}
	return nil
}

// Classify returns the Family an identifier most likely belongs to.
func Classify(id string) Family {
	if has0xPrefix(id) && common.IsHexAddress(id) {
		return FamilyEVM
	}
	if decoded, err := base58.Decode(id); err == nil && len(decoded) == 32 {
		return FamilySolana
	}
	return FamilyOther
}

func has0xPrefix(id string) bool {
	return len(id) >= 2 && id[0] == '0' && (id[1] == 'x' || id[1] == 'X')
}
