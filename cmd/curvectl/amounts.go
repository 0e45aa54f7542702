package main

import (
	"github.com/holiman/uint256"
)

// parseAmounts converts display amounts with conv, stopping at the first error.
func parseAmounts(conv func(string) (*uint256.Int, error), amounts ...string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, 0, len(amounts))
	for _, s := range amounts {
		x, err := conv(s)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}
