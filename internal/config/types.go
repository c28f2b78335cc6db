package config

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultSymbols lists the symbols analyzed when the config names none.
var DefaultSymbols = []string{
	"SPX", "NDX", "RUT", "SPY", "QQQ", "IWM",
	"AAPL", "TSLA", "NVDA", "META", "AMZN", "GOOGL",
}

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// ValidateSymbols rejects malformed ticker symbols before any work starts.
func ValidateSymbols(symbols []string) error {
	var invalid []string
	for _, s := range symbols {
		if !symbolPattern.MatchString(s) {
			invalid = append(invalid, s)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid symbols: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// EffectiveSymbols applies the override-else-config-else-default resolution
// used by both the CLI and the daemon.
func EffectiveSymbols(override, configured []string) []string {
	if len(override) > 0 {
		return override
	}
	if len(configured) > 0 {
		return configured
	}
	return DefaultSymbols
}
