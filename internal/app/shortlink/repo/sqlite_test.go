package repo

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"bitcli.local/internal/app/shortlink"
)

func openTestDB(t *testing.T) *SQLiteRepo {
	t.Helper()
	r, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "links.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLite_MissOnEmpty(t *testing.T) {
	r := openTestDB(t)

	_, ok, err := r.Get(context.Background(), shortlink.ShortenRequest{LongURL: "https://example.com", GroupGUID: "Bg"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("Get on empty store: got hit, want miss")
	}
}

func TestSQLite_RoundTripAndIdempotence(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()

	req := shortlink.ShortenRequest{LongURL: "https://example.com/a", Domain: "example.link", GroupGUID: "Bg"}
	link := shortlink.Bitlink{Link: "https://example.link/a", ID: "example.link/a", LongURL: req.LongURL}

	inserted, err := r.Insert(ctx, req, link)
	if err != nil || !inserted {
		t.Fatalf("first Insert: got (%v, %v), want (true, nil)", inserted, err)
	}
	inserted, err = r.Insert(ctx, req, shortlink.Bitlink{Link: "https://example.link/b", ID: "example.link/b"})
	if err != nil || inserted {
		t.Fatalf("second Insert: got (%v, %v), want (false, nil)", inserted, err)
	}

	got, ok, err := r.Get(ctx, req)
	if err != nil || !ok {
		t.Fatalf("Get: got (%v, %v)", ok, err)
	}
	if got != link {
		t.Fatalf("Get: got %+v, want %+v (first write wins)", got, link)
	}

	// 不同 domain 是不同的 key
	_, ok, _ = r.Get(ctx, shortlink.ShortenRequest{LongURL: req.LongURL, GroupGUID: "Bg"})
	if ok {
		t.Fatalf("Get with absent domain: got hit, want miss")
	}
}

func TestSQLite_NullDomain(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()

	req := shortlink.ShortenRequest{LongURL: "https://example.com/n", GroupGUID: "Bg"}
	link := shortlink.Bitlink{Link: "https://bit.ly/n", ID: "bit.ly/n", LongURL: req.LongURL}

	if ok, err := r.Insert(ctx, req, link); err != nil || !ok {
		t.Fatalf("Insert: got (%v, %v)", ok, err)
	}
	// NULL domain 上唯一索引不生效，必须靠 NOT EXISTS 挡住重复
	if ok, err := r.Insert(ctx, req, shortlink.Bitlink{Link: "https://bit.ly/m", ID: "bit.ly/m"}); err != nil || ok {
		t.Fatalf("duplicate Insert with NULL domain: got (%v, %v), want (false, nil)", ok, err)
	}
	got, ok, err := r.Get(ctx, req)
	if err != nil || !ok || got != link {
		t.Fatalf("Get: got (%+v, %v, %v), want %+v", got, ok, err, link)
	}

	var keys []shortlink.ShortenRequest
	if err := r.Keys(ctx, func(k shortlink.ShortenRequest) { keys = append(keys, k) }); err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != req {
		t.Fatalf("Keys: got %+v, want [%+v]", keys, req)
	}
}

func TestSQLite_DuplicateIDRejected(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()

	link := shortlink.Bitlink{Link: "https://bit.ly/x", ID: "bit.ly/x"}
	if ok, _ := r.Insert(ctx, shortlink.ShortenRequest{LongURL: "https://a.example", GroupGUID: "Bg"}, link); !ok {
		t.Fatalf("first Insert: got false")
	}
	ok, err := r.Insert(ctx, shortlink.ShortenRequest{LongURL: "https://b.example", GroupGUID: "Bg"}, link)
	if err != nil || ok {
		t.Fatalf("Insert with duplicate id: got (%v, %v), want (false, nil)", ok, err)
	}
}

func TestSQLite_ConcurrentInsertOneWinner(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	req := shortlink.ShortenRequest{LongURL: "https://example.com/race", GroupGUID: "Bg"}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Insert(ctx, req, shortlink.Bitlink{Link: "https://bit.ly/race", ID: "bit.ly/race"})
			if err != nil {
				t.Errorf("Insert: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("winners: got %d, want 1", got)
	}
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.db")
	ctx := context.Background()
	req := shortlink.ShortenRequest{LongURL: "https://example.com/p", GroupGUID: "Bg"}

	r, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if ok, err := r.Insert(ctx, req, shortlink.Bitlink{Link: "https://bit.ly/p", ID: "bit.ly/p"}); err != nil || !ok {
		t.Fatalf("Insert: got (%v, %v)", ok, err)
	}
	r.Close()

	r, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r.Close()
	if _, ok, err := r.Get(ctx, req); err != nil || !ok {
		t.Fatalf("Get after reopen: got (%v, %v), want hit", ok, err)
	}
}
