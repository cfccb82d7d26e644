package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeBitly 模拟 /v4/user 和 /v4/shorten，短链为 https://bit.ly/<path 最后一段>
func fakeBitly(t *testing.T, shortenStatus int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"is_active":true,"default_group_guid":"Bdefault"}`))
	})
	mux.HandleFunc("/v4/shorten", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			LongURL string `json:"long_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if shortenStatus != http.StatusOK {
			w.WriteHeader(shortenStatus)
			w.Write([]byte(`{}`))
			return
		}
		slug := body.LongURL[strings.LastIndex(body.LongURL, "/")+1:]
		json.NewEncoder(w).Encode(map[string]string{
			"link":     "https://bit.ly/" + slug,
			"id":       "bit.ly/" + slug,
			"long_url": body.LongURL,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func setupEnv(t *testing.T, apiURL string) {
	t.Helper()
	for _, k := range []string{"BITCLI_CONFIG_FILE", "BITCLI_CACHE_DIR", "BITCLI_DOMAIN", "BITCLI_GROUP_GUID",
		"BITCLI_OFFLINE", "BITCLI_ORDERING", "BITCLI_MAX_CONCURRENT", "BITCLI_CACHE_BACKEND", "BITCLI_NO_CACHE",
		"BITCLI_TRACING_ENABLED", "BITCLI_METRICS_FILE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("BITCLI_API_URL", apiURL)
	t.Setenv("BITCLI_API_TOKEN", "test-token")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestShorten_ArgsOrdered(t *testing.T) {
	srv, _ := fakeBitly(t, http.StatusOK)
	setupEnv(t, srv.URL)

	code, out, errOut := run(t, "", "--cache-dir", t.TempDir(),
		"https://example.com/a", "https://example.com/b", "https://example.com/c")
	if code != exitOK {
		t.Fatalf("exit code: got %d, want %d (stderr=%q)", code, exitOK, errOut)
	}
	want := "https://bit.ly/a\nhttps://bit.ly/b\nhttps://bit.ly/c\n"
	if out != want {
		t.Fatalf("stdout: got %q, want %q", out, want)
	}
}

func TestShorten_CacheAvoidsSecondCall(t *testing.T) {
	srv, calls := fakeBitly(t, http.StatusOK)
	setupEnv(t, srv.URL)
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		code, out, errOut := run(t, "", "shorten", "--cache-dir", dir, "-g", "Bgroup", "https://example.com/x")
		if code != exitOK {
			t.Fatalf("run %d exit code: got %d (stderr=%q)", i, code, errOut)
		}
		if out != "https://bit.ly/x\n" {
			t.Fatalf("run %d stdout: got %q", i, out)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("shorten calls: got %d, want %d", got, 1)
	}

	// 离线模式直接命中缓存（分组必须已知，否则需要查询用户）
	code, out, errOut := run(t, "", "--cache-dir", dir, "-g", "Bgroup", "--offline", "https://example.com/x")
	if code != exitOK || out != "https://bit.ly/x\n" {
		t.Fatalf("offline run: code=%d stdout=%q stderr=%q", code, out, errOut)
	}
}

func TestShorten_StdinUnordered(t *testing.T) {
	srv, _ := fakeBitly(t, http.StatusOK)
	setupEnv(t, srv.URL)

	stdin := "https://example.com/a\n\n   \nnot a url\nhttps://example.com/b\n"
	code, out, errOut := run(t, stdin, "--no-cache", "--ordering", "unordered")
	if code != exitFailure {
		t.Fatalf("exit code: got %d, want %d", code, exitFailure)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout lines: got %q, want 2 lines", out)
	}
	got := map[string]bool{}
	for _, l := range lines {
		got[l] = true
	}
	for _, want := range []string{"https://example.com/a https://bit.ly/a", "https://example.com/b https://bit.ly/b"} {
		if !got[want] {
			t.Fatalf("stdout: missing %q in %q", want, out)
		}
	}
	if !strings.Contains(errOut, "error: not a url: line 4") {
		t.Fatalf("stderr: got %q, want the invalid line reported", errOut)
	}
}

func TestShorten_InvalidArgRejectedUpFront(t *testing.T) {
	srv, calls := fakeBitly(t, http.StatusOK)
	setupEnv(t, srv.URL)

	code, out, errOut := run(t, "", "--no-cache", "https://example.com/a", "ftp://example.com/b")
	if code != exitFailure {
		t.Fatalf("exit code: got %d, want %d", code, exitFailure)
	}
	if out != "" {
		t.Fatalf("stdout: got %q, want empty", out)
	}
	if calls.Load() != 0 {
		t.Fatalf("shorten calls: got %d, want 0", calls.Load())
	}
	if !strings.Contains(errOut, "invalid url") {
		t.Fatalf("stderr: got %q", errOut)
	}
}

func TestShorten_ProtocolViolationExits70(t *testing.T) {
	srv, _ := fakeBitly(t, http.StatusTeapot)
	setupEnv(t, srv.URL)

	code, _, errOut := run(t, "", "--no-cache", "https://example.com/a")
	if code != exitProtocol {
		t.Fatalf("exit code: got %d, want %d (stderr=%q)", code, exitProtocol, errOut)
	}
	if !strings.Contains(errOut, "API violation") {
		t.Fatalf("stderr: got %q", errOut)
	}
}

func TestShorten_NoCacheConflictsWithOffline(t *testing.T) {
	srv, _ := fakeBitly(t, http.StatusOK)
	setupEnv(t, srv.URL)

	code, _, _ := run(t, "", "--no-cache", "--offline", "https://example.com/a")
	if code != exitFailure {
		t.Fatalf("exit code: got %d, want %d", code, exitFailure)
	}
}

func TestShorten_MissingTokenFails(t *testing.T) {
	srv, _ := fakeBitly(t, http.StatusOK)
	setupEnv(t, srv.URL)
	t.Setenv("BITCLI_API_TOKEN", "")

	code, _, errOut := run(t, "", "--no-cache", "https://example.com/a")
	if code != exitFailure {
		t.Fatalf("exit code: got %d, want %d", code, exitFailure)
	}
	if !strings.Contains(errOut, "api_token") {
		t.Fatalf("stderr: got %q", errOut)
	}
}

func TestVersion(t *testing.T) {
	code, out, _ := run(t, "", "version")
	if code != exitOK {
		t.Fatalf("exit code: got %d", code)
	}
	if !strings.HasPrefix(out, "bitcli dev") {
		t.Fatalf("stdout: got %q", out)
	}
}

func TestShorten_FixtureScenario(t *testing.T) {
	fixtures := map[string]string{
		"https://example.com": `{"id":"1","link":"https://test.domain/4ePsyXN","long_url":"https://example.com"}`,
		"http://example.com":  `{"id":"2","link":"https://test.domain/3WA1XXp","long_url":"http://example.com"}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			LongURL string `json:"long_url"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(fixtures[body.LongURL]))
	}))
	defer srv.Close()
	setupEnv(t, srv.URL)

	code, out, errOut := run(t, "", "--no-cache", "-g", "Bg", "--max-concurrent", "4",
		"https://example.com", "http://example.com")
	if code != exitOK {
		t.Fatalf("ordered exit code: got %d (stderr=%q)", code, errOut)
	}
	if want := "https://test.domain/4ePsyXN\nhttps://test.domain/3WA1XXp\n"; out != want {
		t.Fatalf("ordered stdout: got %q, want %q", out, want)
	}

	code, out, errOut = run(t, "", "--no-cache", "-g", "Bg", "--max-concurrent", "4", "--ordering", "unordered",
		"https://example.com", "http://example.com")
	if code != exitOK {
		t.Fatalf("unordered exit code: got %d (stderr=%q)", code, errOut)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	got := map[string]bool{}
	for _, l := range lines {
		got[l] = true
	}
	if len(lines) != 2 || !got["https://example.com https://test.domain/4ePsyXN"] || !got["http://example.com https://test.domain/3WA1XXp"] {
		t.Fatalf("unordered stdout: got %q", out)
	}
}
