// This file is part of ipiis-go, an identity-addressed peer-to-peer RPC
// substrate in Golang.
//
// Package config reads the five `ipiis_*` environment variables spec.md
// §6 lists as the external configuration collaborator's contract into a
// Config ready to build an Account, a RoutingTable and, where configured,
// a root primary binding. It deliberately does no file parsing or
// templating — that richer job belongs to the out-of-scope CLI/config
// loader spec.md §6 names as an external collaborator — reduced here to
// plain os.Getenv reads, the way the teacher's config.ParseConfig reduces
// to a single json.Unmarshal call before any substitution logic runs
// (src/gnunet/config/config.go).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bfix/gospel/logger"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/internal/xutil"
	"github.com/ipiis/ipiis-go/netaddr"
)

// Environment variable names consumed (spec.md §6).
const (
	EnvAccountMe             = "ipis_account_me"
	EnvAccountPrimary        = "ipiis_account_primary"
	EnvAccountPrimaryAddress = "ipiis_account_primary_address"
	EnvServerPort            = "ipiis_server_port"
	EnvRouterDB              = "ipiis_router_db"
)

// seedSize is the width of the textual private seed ipis_account_me
// carries, matching account.AccountFromSeed's expectation (an Ed25519
// seed, not the expanded 64-byte private key).
const seedSize = 32

// defaultRouterDB is used when ipiis_router_db is unset: a process-local,
// non-persistent routing table, adequate for a short-lived client role.
const defaultRouterDB = "memory"

// Config is the assembled result of reading the environment (spec.md
// §6). Primary and PrimaryAddress are the zero value when the
// corresponding variables are unset — a process with no configured
// upstream, valid only for a root server.
type Config struct {
	Me             *account.Account
	Primary        *account.AccountRef
	PrimaryAddress netaddr.Address
	ServerPort     uint16 // 0 when ipiis_server_port is unset (client-only role)
	RouterDB       string
}

// FromEnvironment reads the five ipiis_* variables and assembles a
// Config. ipis_account_me is required; every other variable is optional
// (spec.md §6 marks the primary pair, the port and the router path as
// such).
func FromEnvironment() (*Config, error) {
	meText := os.Getenv(EnvAccountMe)
	if meText == "" {
		return nil, fmt.Errorf("config: %s is required", EnvAccountMe)
	}
	seed, err := xutil.DecodeStringToBinary(meText, seedSize)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", EnvAccountMe, err)
	}
	cfg := &Config{
		Me:       account.AccountFromSeed(seed),
		RouterDB: defaultRouterDB,
	}
	logger.Printf(logger.INFO, "[config] account %s\n", cfg.Me.Ref())

	if s := os.Getenv(EnvAccountPrimary); s != "" {
		ref, err := account.ParseAccountRef(s)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvAccountPrimary, err)
		}
		cfg.Primary = &ref
	}
	if s := os.Getenv(EnvAccountPrimaryAddress); s != "" {
		addr, err := netaddr.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvAccountPrimaryAddress, err)
		}
		cfg.PrimaryAddress = addr
	}
	if cfg.Primary != nil && cfg.PrimaryAddress == nil {
		logger.Printf(logger.WARN, "[config] %s set without %s: primary is unreachable until learned\n", EnvAccountPrimary, EnvAccountPrimaryAddress)
	}

	if s := os.Getenv(EnvServerPort); s != "" {
		port, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvServerPort, err)
		}
		cfg.ServerPort = uint16(port)
	}
	if s := os.Getenv(EnvRouterDB); s != "" {
		cfg.RouterDB = s
	}
	return cfg, nil
}
