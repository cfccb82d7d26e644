package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	Init()
	Init() // 重复调用不能 panic

	ShortenResultsTotal.WithLabelValues("remote").Inc()
	CacheOperations.WithLabelValues("sqlite", "hit").Inc()

	path := filepath.Join(t.TempDir(), "bitcli.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{
		`bitcli_shorten_results_total{result="remote"}`,
		`bitcli_cache_operations_total{layer="sqlite",result="hit"}`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("textfile: missing %q", want)
		}
	}
}
