package main

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	lamportsPerPrize = 1_000_000_000
	prizeDecimals    = 9
)

// parseAmount converts a decimal PRIZE amount such as "1.25" to lamports.
func parseAmount(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("amount required")
	}
	whole, frac, hasFrac := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (frac == "" || len(frac) > prizeDecimals) {
		return 0, fmt.Errorf("invalid amount %q: at most %d decimals", raw, prizeDecimals)
	}
	units, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if units > (^uint64(0))/lamportsPerPrize {
		return 0, fmt.Errorf("amount %q overflows", raw)
	}
	lamports := units * lamportsPerPrize
	if hasFrac {
		padded := frac + strings.Repeat("0", prizeDecimals-len(frac))
		fraction, err := strconv.ParseUint(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", raw)
		}
		if lamports+fraction < lamports {
			return 0, fmt.Errorf("amount %q overflows", raw)
		}
		lamports += fraction
	}
	if lamports == 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return lamports, nil
}

func formatAmount(lamports uint64) string {
	whole, frac := lamports/lamportsPerPrize, lamports%lamportsPerPrize
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	s := fmt.Sprintf("%d.%09d", whole, frac)
	return strings.TrimRight(s, "0")
}
