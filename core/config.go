package core

import (
	"time"

	"dftledger/pkg/config"
)

// LedgerConfig collects the tunables a Ledger needs at construction
// time, translated from the viper-backed pkg/config.Config into the
// concrete types core.NewLedger consumes (TokenFee, nanosecond
// durations) so the rest of this package never imports viper directly.
type LedgerConfig struct {
	Name     string
	Symbol   string
	Decimals uint8
	Fee      TokenFee

	TransactionWindowNanos uint64
	PermittedDriftNanos    uint64
	MaxInWindow            int
	MaxPurgePerCall        int

	ArchiveTriggerThreshold int
	ArchiveNumToArchive     int
	ArchiveMaxNodeBytes     int64
	ArchiveMaxMessageBytes  int
	ArchiveCyclesPerNode    uint64
}

// LedgerConfigFromAppConfig adapts a loaded application config into a
// LedgerConfig, copying each field as is (seconds become nanoseconds).
// It does not substitute defaults for zero-valued fields: defaults come
// from config.Load, or from DefaultLedgerConfig for callers that skip
// viper.
func LedgerConfigFromAppConfig(c *config.Config) LedgerConfig {
	lc := LedgerConfig{
		Name:     c.Ledger.Name,
		Symbol:   c.Ledger.Symbol,
		Decimals: c.Ledger.Decimals,
		Fee: TokenFee{
			Minimum:      NewAmount(c.Ledger.FeeMinimum),
			Rate:         c.Ledger.FeeRate,
			RateDecimals: c.Ledger.RateDecimals,
		},
		TransactionWindowNanos:  c.ReplayWindow.TransactionWindowSecs * uint64(time.Second),
		PermittedDriftNanos:     c.ReplayWindow.PermittedDriftSecs * uint64(time.Second),
		MaxInWindow:             c.ReplayWindow.MaxInWindow,
		MaxPurgePerCall:         c.ReplayWindow.MaxPurgePerCall,
		ArchiveTriggerThreshold: c.Archive.TriggerThreshold,
		ArchiveNumToArchive:     c.Archive.NumToArchive,
		ArchiveMaxNodeBytes:     c.Archive.MaxNodeBytes,
		ArchiveMaxMessageBytes:  c.Archive.MaxMessageBytes,
		ArchiveCyclesPerNode:    c.Archive.CyclesPerNode,
	}
	return lc
}

// DefaultLedgerConfig returns the same defaults pkg/config.setDefaults
// bakes in, for tests and embeddings that skip viper entirely.
func DefaultLedgerConfig(name, symbol string) LedgerConfig {
	return LedgerConfig{
		Name:                    name,
		Symbol:                  symbol,
		Decimals:                8,
		Fee:                     TokenFee{Minimum: ZeroAmount(), Rate: 0, RateDecimals: 8},
		TransactionWindowNanos:  24 * 60 * 60 * uint64(time.Second),
		PermittedDriftNanos:     2 * 60 * uint64(time.Second),
		MaxInWindow:             5000,
		MaxPurgePerCall:         100,
		ArchiveTriggerThreshold: 2000,
		ArchiveNumToArchive:     1000,
		ArchiveMaxNodeBytes:     3 * 1024 * 1024 * 1024,
		ArchiveMaxMessageBytes:  2 * 1024 * 1024,
		ArchiveCyclesPerNode:    2_000_000_000_000,
	}
}
