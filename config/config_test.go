package config_test

import (
	"testing"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/config"
	"github.com/ipiis/ipiis-go/internal/xutil"
)

func TestFromEnvironmentRequiresAccountMe(t *testing.T) {
	t.Setenv(config.EnvAccountMe, "")
	if _, err := config.FromEnvironment(); err == nil {
		t.Fatal("expected error when ipis_account_me is unset")
	}
}

func TestFromEnvironmentMinimal(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	t.Setenv(config.EnvAccountMe, xutil.EncodeBinaryToString(seed))

	cfg, err := config.FromEnvironment()
	if err != nil {
		t.Fatalf("FromEnvironment: %s", err)
	}
	want := account.AccountFromSeed(seed).Ref()
	if !cfg.Me.Ref().Equals(want) {
		t.Fatalf("got account %s, want %s", cfg.Me.Ref(), want)
	}
	if cfg.Primary != nil {
		t.Fatal("expected no primary configured")
	}
	if cfg.RouterDB != "memory" {
		t.Fatalf("got RouterDB %q, want default %q", cfg.RouterDB, "memory")
	}
	if cfg.ServerPort != 0 {
		t.Fatalf("got ServerPort %d, want 0", cfg.ServerPort)
	}
}

func TestFromEnvironmentFull(t *testing.T) {
	meSeed := make([]byte, 32)
	for i := range meSeed {
		meSeed[i] = byte(i + 1)
	}
	t.Setenv(config.EnvAccountMe, xutil.EncodeBinaryToString(meSeed))

	primary, err := account.NewAccount()
	if err != nil {
		t.Fatalf("NewAccount: %s", err)
	}
	t.Setenv(config.EnvAccountPrimary, primary.Ref().String())
	t.Setenv(config.EnvAccountPrimaryAddress, "tcp:127.0.0.1:5001")
	t.Setenv(config.EnvServerPort, "5002")
	t.Setenv(config.EnvRouterDB, "sqlite3+/tmp/ipiis-routing.db")

	cfg, err := config.FromEnvironment()
	if err != nil {
		t.Fatalf("FromEnvironment: %s", err)
	}
	if cfg.Primary == nil || !cfg.Primary.Equals(primary.Ref()) {
		t.Fatalf("got primary %v, want %s", cfg.Primary, primary.Ref())
	}
	if cfg.PrimaryAddress == nil || cfg.PrimaryAddress.String() != "tcp:127.0.0.1:5001" {
		t.Fatalf("got primary address %v, want tcp:127.0.0.1:5001", cfg.PrimaryAddress)
	}
	if cfg.ServerPort != 5002 {
		t.Fatalf("got ServerPort %d, want 5002", cfg.ServerPort)
	}
	if cfg.RouterDB != "sqlite3+/tmp/ipiis-routing.db" {
		t.Fatalf("got RouterDB %q", cfg.RouterDB)
	}
}
