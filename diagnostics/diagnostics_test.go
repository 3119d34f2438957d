package diagnostics_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/diagnostics"
	"github.com/ipiis/ipiis-go/netaddr"
	"github.com/ipiis/ipiis-go/routing"
)

func TestDiagnosticsServesRoutingAndStats(t *testing.T) {
	self, err := account.NewAccount()
	if err != nil {
		t.Fatalf("NewAccount: %s", err)
	}
	table, err := routing.Open("memory", self.Ref())
	if err != nil {
		t.Fatalf("routing.Open: %s", err)
	}
	who := mustAccount(t).Ref()
	addr, err := netaddr.ParseStringAddress("10.1.1.1:7000")
	if err != nil {
		t.Fatalf("ParseStringAddress: %s", err)
	}
	if err := table.Set(nil, who, addr); err != nil {
		t.Fatalf("Set: %s", err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %s", err)
	}
	bind := l.Addr().String()
	l.Close()

	srv := diagnostics.New(self.Ref(), table, bind)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	waitForHTTP(t, "http://"+bind+"/stats")

	var stats struct {
		Self    string `json:"self"`
		Entries int    `json:"entries"`
	}
	getJSON(t, "http://"+bind+"/stats", &stats)
	if stats.Self != self.Ref().String() {
		t.Fatalf("got self %q, want %q", stats.Self, self.Ref().String())
	}
	if stats.Entries != 1 {
		t.Fatalf("got %d entries, want 1", stats.Entries)
	}

	var entries []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	getJSON(t, "http://"+bind+"/routing", &entries)
	if len(entries) != 1 {
		t.Fatalf("got %d routing entries, want 1", len(entries))
	}
	if entries[0].Value != addr.String() {
		t.Fatalf("got value %q, want %q", entries[0].Value, addr.String())
	}
}

func mustAccount(t *testing.T) *account.Account {
	t.Helper()
	a, err := account.NewAccount()
	if err != nil {
		t.Fatalf("NewAccount: %s", err)
	}
	return a
}

func waitForHTTP(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server at %s never became reachable", url)
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %s", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %s", url, err)
	}
}
