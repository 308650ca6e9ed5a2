package database

import (
	"time"

	"photodb/internal/config"
)

// OptionsFromConfig converts the [database] config section into ledger options.
// Zero values fall back to DefaultOptions.
func OptionsFromConfig(cfg config.DatabaseConfig) Options {
	return Options{
		BusyTimeout: time.Duration(cfg.BusyTimeoutMS) * time.Millisecond,
		ReadConns:   cfg.ReadConns,
	}.withDefaults()
}

// OpenLedgerFromConfig opens the ledger of root using config options.
func OpenLedgerFromConfig(cfg config.DatabaseConfig, root string) (*SQLiteLedger, error) {
	return OpenLedger(root, OptionsFromConfig(cfg))
}

// CreateLedgerFromConfig creates the ledger of root using config options.
func CreateLedgerFromConfig(cfg config.DatabaseConfig, root string) (bool, error) {
	return CreateLedger(root, OptionsFromConfig(cfg))
}
