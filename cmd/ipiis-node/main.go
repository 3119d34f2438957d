// This file is part of ipiis-go, an identity-addressed peer-to-peer RPC
// substrate in Golang.
//
// ipiis-node is an example process entry point wiring together Config,
// RoutingTable, Client and Server (spec.md §6), grounded on the
// teacher's cmd/gnunet-service-gns-go/main.go: flag-parsed subcommands,
// an os/signal loop driving graceful shutdown, and logger.Println banner
// lines. It is not itself the CLI surface spec.md §6 names as an
// external collaborator — it demonstrates the underlying calls
// (`serve` runs the accept loop; `get-account`/`set-account`/
// `delete-account` call straight into package client) that a richer,
// out-of-scope CLI would also call.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bfix/gospel/logger"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/client"
	"github.com/ipiis/ipiis-go/config"
	"github.com/ipiis/ipiis-go/netaddr"
	"github.com/ipiis/ipiis-go/routing"
	"github.com/ipiis/ipiis-go/server"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.FromEnvironment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
		os.Exit(1)
	}
	table, err := routing.Open(cfg.RouterDB, cfg.Me.Ref())
	if err != nil {
		fmt.Fprintln(os.Stderr, "ipiis-node: open routing table: "+err.Error())
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(cfg, table)
	case "get-account":
		runGetAccount(cfg, table, os.Args[2:])
	case "set-account":
		runSetAccount(cfg, table, os.Args[2:])
	case "delete-account":
		runDeleteAccount(cfg, table, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ipiis-node <serve|get-account|set-account|delete-account> [flags]")
}

func parseKind(s string) *account.Hash {
	if s == "" {
		return nil
	}
	h := account.HashOf([]byte(s))
	return &h
}

func parseAccountRef(s string) (account.AccountRef, error) {
	if s == "" {
		return account.AccountRef{}, fmt.Errorf("--account is required")
	}
	return account.ParseAccountRef(s)
}

// runServe boots a Server on cfg.ServerPort and blocks until SIGINT/SIGTERM,
// matching the teacher's signal-driven shutdown in
// cmd/gnunet-service-gns-go/main.go.
func runServe(cfg *config.Config, table *routing.RoutingTable) {
	defer func() {
		logger.Println(logger.INFO, "[ipiis-node] Bye.")
		logger.Flush()
	}()
	if cfg.ServerPort == 0 {
		fmt.Fprintln(os.Stderr, "ipiis-node: ipiis_server_port is required for serve")
		os.Exit(1)
	}

	srv := server.New(cfg.Me, table, cfg.Primary, cfg.PrimaryAddress, "quic", cfg.ServerPort)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf(logger.INFO, "[ipiis-node] terminating on signal %s\n", sig)
		cancel()
	}()

	logger.Printf(logger.INFO, "[ipiis-node] serving as %s on port %d\n", cfg.Me.Ref(), cfg.ServerPort)
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
		os.Exit(1)
	}
}

func runGetAccount(cfg *config.Config, table *routing.RoutingTable, args []string) {
	fs := flag.NewFlagSet("get-account", flag.ExitOnError)
	kindFlag := fs.String("kind", "", "optional kind tag")
	accountFlag := fs.String("account", "", "account to look up; omitted means look up the primary")
	fs.Parse(args)

	c := client.New(cfg.Me, table, cfg.Primary, cfg.PrimaryAddress)
	kind := parseKind(*kindFlag)
	ctx := context.Background()

	if *accountFlag == "" {
		who, err := c.GetAccountPrimary(ctx, kind)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
			os.Exit(1)
		}
		fmt.Println(who.String())
		return
	}
	target, err := parseAccountRef(*accountFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
		os.Exit(1)
	}
	addr, err := c.GetAddress(ctx, kind, target)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
		os.Exit(1)
	}
	fmt.Println(addr.String())
}

func runSetAccount(cfg *config.Config, table *routing.RoutingTable, args []string) {
	fs := flag.NewFlagSet("set-account", flag.ExitOnError)
	kindFlag := fs.String("kind", "", "optional kind tag")
	accountFlag := fs.String("account", "", "account to set (required)")
	addressFlag := fs.String("address", "", "address to bind (required unless --primary)")
	primaryFlag := fs.Bool("primary", false, "designate --account as the primary for --kind instead of setting its address")
	fs.Parse(args)

	target, err := parseAccountRef(*accountFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
		os.Exit(1)
	}
	c := client.New(cfg.Me, table, cfg.Primary, cfg.PrimaryAddress)
	kind := parseKind(*kindFlag)
	ctx := context.Background()

	if *primaryFlag {
		if err := c.SetAccountPrimary(ctx, kind, target); err != nil {
			fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
			os.Exit(1)
		}
		return
	}
	if *addressFlag == "" {
		fmt.Fprintln(os.Stderr, "ipiis-node: --address is required unless --primary is set")
		os.Exit(2)
	}
	addr, err := netaddr.Parse(*addressFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
		os.Exit(1)
	}
	if err := c.SetAddress(ctx, kind, target, addr); err != nil {
		fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
		os.Exit(1)
	}
}

func runDeleteAccount(cfg *config.Config, table *routing.RoutingTable, args []string) {
	fs := flag.NewFlagSet("delete-account", flag.ExitOnError)
	kindFlag := fs.String("kind", "", "optional kind tag")
	accountFlag := fs.String("account", "", "account to delete; omitted means delete the primary designator")
	fs.Parse(args)

	c := client.New(cfg.Me, table, cfg.Primary, cfg.PrimaryAddress)
	kind := parseKind(*kindFlag)
	ctx := context.Background()

	if *accountFlag == "" {
		if err := c.DeleteAccountPrimary(ctx, kind); err != nil {
			fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
			os.Exit(1)
		}
		return
	}
	target, err := parseAccountRef(*accountFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
		os.Exit(1)
	}
	if err := c.DeleteAddress(ctx, kind, target); err != nil {
		fmt.Fprintln(os.Stderr, "ipiis-node: "+err.Error())
		os.Exit(1)
	}
}
