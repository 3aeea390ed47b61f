package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	mu       sync.Mutex
	listing  string
	status   int
	failUIDs map[string]int
	deletes  []string
	auth     []string
	stray    []string
}

func (f *fakeCatalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/catalog/entities":
		if r.URL.RawQuery != "filter=metadata.annotations.backstage.io/orphan=true" {
			http.Error(w, "bad filter", http.StatusBadRequest)
			return
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		_, _ = w.Write([]byte(f.listing))
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/catalog/entities/by-uid/"):
		uid := strings.TrimPrefix(r.URL.Path, "/api/catalog/entities/by-uid/")
		f.deletes = append(f.deletes, r.URL.Path)
		if code, ok := f.failUIDs[uid]; ok {
			if code >= 300 && code < 400 {
				w.Header().Set("Location", "/moved/"+uid)
			}
			w.WriteHeader(code)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		f.stray = append(f.stray, r.Method+" "+r.URL.Path)
		http.NotFound(w, r)
	}
}

type cliRun struct {
	err    error
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliRun {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return cliRun{err: err, stdout: stdout.String(), stderr: stderr.String()}
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origWd) })

	for _, key := range []string{"BACKSTAGE_URL", "BACKSTAGE_API_KEY", "REQUEST_ID_HEADER", "HTTP_TIMEOUT", "LOG_FORMAT"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	t.Setenv("LOG_LEVEL", "warn")

	orig := now
	now = func() time.Time { return time.Date(2025, 3, 7, 9, 5, 0, 0, time.Local) }
	t.Cleanup(func() { now = orig })
	return dir
}

func readRecords(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRun_DeletesAndWritesCSV(t *testing.T) {
	dir := setupEnv(t)
	fc := &fakeCatalog{listing: `[{"kind":"Component","metadata":{"name":"svc1","uid":"u1"}}]`}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	res := runCLI(t, srv.URL+"/", "--csv-output")
	require.NoError(t, res.err)
	assert.Equal(t, exitOK, exitCode(res.err))

	assert.Equal(t, []string{"/api/catalog/entities/by-uid/u1"}, fc.deletes)
	assert.True(t, strings.HasPrefix(res.stdout, srv.URL+"\n\nFound 1 orphaned entities\n\n"), res.stdout)
	assert.Contains(t, res.stdout, "Deleting orphan entity: svc1 of kind: Component\n")

	name := "backstage-orphaned-entities-deleted-20250307-0905.csv"
	assert.Contains(t, res.stdout, "Wrote CSV to "+name+"\n")
	assert.Equal(t, [][]string{
		{"name", "kind", "owner", "tags", "location"},
		{"svc1", "Component", "<unknown>", "", "<unknown>"},
	}, readRecords(t, filepath.Join(dir, name)))
}

func TestRun_DryRunNeverDeletes(t *testing.T) {
	dir := setupEnv(t)
	fc := &fakeCatalog{listing: `[
		{"kind":"Component","metadata":{"name":"Beta","uid":"u2"}},
		{"kind":"API","metadata":{"name":"alpha","uid":"u1","tags":["b","a"],"annotations":{"backstage.io/owned-by":"team-x"}}},
		{"kind":"Component","metadata":{"name":"nouid"}}
	]`}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	res := runCLI(t, srv.URL, "-n", "--csv-output", "--xlsx-output", "--api-key", "tok")
	require.NoError(t, res.err)

	assert.Empty(t, fc.deletes)
	assert.Contains(t, res.stdout, "Found 3 orphaned entities")
	assert.Contains(t, res.stdout, "Dry-run: would delete orphan entity: Beta of kind: Component")
	assert.Contains(t, res.stderr, "Skipping entity nouid of kind Component: missing uid")
	assert.NotContains(t, res.stdout, "Skipping")
	for _, auth := range fc.auth {
		assert.Equal(t, "Bearer tok", auth)
	}

	name := "backstage-dry-run-orphaned-entities-deleted-20250307-0905"
	assert.Equal(t, [][]string{
		{"name", "kind", "owner", "tags", "location"},
		{"alpha", "API", "team-x", "a;b", "<unknown>"},
		{"Beta", "Component", "<unknown>", "", "<unknown>"},
	}, readRecords(t, filepath.Join(dir, name+".csv")))
	assert.FileExists(t, filepath.Join(dir, name+".xlsx"))
}

func TestRun_DeleteFailureKeepsGoing(t *testing.T) {
	dir := setupEnv(t)
	fc := &fakeCatalog{
		listing: `[
			{"kind":"Component","metadata":{"name":"bad","uid":"u1"}},
			{"kind":"Component","metadata":{"name":"good","uid":"u2"}}
		]`,
		failUIDs: map[string]int{"u1": http.StatusInternalServerError},
	}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	res := runCLI(t, srv.URL, "--csv-output")
	require.NoError(t, res.err)

	assert.Len(t, fc.deletes, 2)
	assert.Contains(t, res.stderr, "Delete failed for uid u1 (500): Internal Server Error")
	records := readRecords(t, filepath.Join(dir, "backstage-orphaned-entities-deleted-20250307-0905.csv"))
	require.Len(t, records, 2)
	assert.Equal(t, "good", records[1][0])
}

func TestRun_RedirectedDeleteIsFailure(t *testing.T) {
	dir := setupEnv(t)
	fc := &fakeCatalog{
		listing: `[
			{"kind":"Component","metadata":{"name":"moved","uid":"u1"}},
			{"kind":"Component","metadata":{"name":"good","uid":"u2"}}
		]`,
		failUIDs: map[string]int{"u1": http.StatusTemporaryRedirect},
	}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	metrics := filepath.Join(dir, "orphans.prom")
	res := runCLI(t, srv.URL, "--csv-output", "--metrics-file", metrics)
	require.NoError(t, res.err)

	assert.Empty(t, fc.stray)
	assert.Contains(t, res.stderr, "Delete failed for uid u1 (307): Temporary Redirect")
	records := readRecords(t, filepath.Join(dir, "backstage-orphaned-entities-deleted-20250307-0905.csv"))
	require.Len(t, records, 2)
	assert.Equal(t, "good", records[1][0])

	b, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(b), `backstage_orphan_cleanup_entities{outcome="failed"} 1`)
	assert.Contains(t, string(b), `backstage_orphan_cleanup_entities{outcome="deleted"} 1`)
}

func TestRun_ErrorLevelKeepsSkipAndFailureLines(t *testing.T) {
	setupEnv(t)
	t.Setenv("LOG_LEVEL", "error")
	fc := &fakeCatalog{
		listing: `[
			{"kind":"Component","metadata":{"name":"nouid"}},
			{"kind":"Component","metadata":{"name":"bad","uid":"u1"}}
		]`,
		failUIDs: map[string]int{"u1": http.StatusNotFound},
	}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	res := runCLI(t, srv.URL)
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Skipping entity nouid of kind Component: missing uid")
	assert.Contains(t, res.stderr, "Delete failed for uid u1 (404): Not Found")

	t.Setenv("LOG_LEVEL", "silent")
	res = runCLI(t, srv.URL)
	require.NoError(t, res.err)
	assert.Empty(t, res.stderr)
}

func TestRun_DumpKeepsCatalogKeyOrder(t *testing.T) {
	setupEnv(t)
	fc := &fakeCatalog{listing: `[{"metadata":{"uid":"u1","name":"svc1"},"kind":"Component"}]`}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	res := runCLI(t, srv.URL, "-n")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "{\n  \"metadata\": {\n    \"uid\": \"u1\",\n    \"name\": \"svc1\"\n  },\n  \"kind\": \"Component\"\n}\n")
}

func TestRun_EmptyListingWritesHeaderOnly(t *testing.T) {
	dir := setupEnv(t)
	fc := &fakeCatalog{listing: `[]`}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	res := runCLI(t, srv.URL, "--csv-output")
	require.NoError(t, res.err)
	assert.Equal(t, exitOK, exitCode(res.err))
	assert.Empty(t, fc.deletes)
	assert.Equal(t,
		srv.URL+"\n\nFound 0 orphaned entities\n\nWrote CSV to backstage-orphaned-entities-deleted-20250307-0905.csv\n",
		res.stdout)
	assert.Equal(t, [][]string{{"name", "kind", "owner", "tags", "location"}},
		readRecords(t, filepath.Join(dir, "backstage-orphaned-entities-deleted-20250307-0905.csv")))
}

func TestRun_FetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		fc      *fakeCatalog
		message string
	}{
		{name: "object", fc: &fakeCatalog{listing: `{"items":[{"metadata":{"uid":"u1"}}]}`}, message: "Unexpected response format (expected list, got object)"},
		{name: "scalar", fc: &fakeCatalog{listing: `"nope"`}, message: "expected list, got string"},
		{name: "invalid json", fc: &fakeCatalog{listing: `[{`}, message: "Invalid JSON from"},
		{name: "http error", fc: &fakeCatalog{listing: `{}`, status: http.StatusServiceUnavailable}, message: "Failed to fetch orphans (503): Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupEnv(t)
			srv := httptest.NewServer(tt.fc)
			defer srv.Close()

			metrics := filepath.Join(dir, "orphans.prom")
			res := runCLI(t, srv.URL, "--csv-output", "--metrics-file", metrics)
			require.Error(t, res.err)
			assert.Equal(t, exitFailure, exitCode(res.err))
			assert.Contains(t, res.err.Error(), tt.message)
			assert.Empty(t, tt.fc.deletes)
			assert.Equal(t, srv.URL+"\n", res.stdout)

			matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
			require.NoError(t, err)
			assert.Empty(t, matches)

			b, err := os.ReadFile(metrics)
			require.NoError(t, err)
			assert.Contains(t, string(b), "backstage_orphan_cleanup_fetch_failed 1")
		})
	}
}

func TestRun_Unreachable(t *testing.T) {
	setupEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	res := runCLI(t, base)
	require.Error(t, res.err)
	assert.Equal(t, exitFailure, exitCode(res.err))
	assert.Contains(t, res.err.Error(), "Failed to reach "+base)
}

func TestRun_EnvironmentDefaults(t *testing.T) {
	setupEnv(t)
	fc := &fakeCatalog{listing: `[]`}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	t.Setenv("BACKSTAGE_URL", srv.URL+"/")
	t.Setenv("BACKSTAGE_API_KEY", "from-env")

	res := runCLI(t)
	require.NoError(t, res.err)
	assert.True(t, strings.HasPrefix(res.stdout, srv.URL+"\n"))
	require.NotEmpty(t, fc.auth)
	assert.Equal(t, "Bearer from-env", fc.auth[0])

	fc.auth = nil
	res = runCLI(t, "--api-key", "")
	require.NoError(t, res.err)
	require.NotEmpty(t, fc.auth)
	assert.Empty(t, fc.auth[0], "an explicit empty --api-key disables the bearer token")
}

func TestRun_UsageErrors(t *testing.T) {
	setupEnv(t)

	res := runCLI(t, "http://a", "http://b")
	require.Error(t, res.err)
	assert.Equal(t, exitUsage, exitCode(res.err))

	res = runCLI(t, "--no-such-flag")
	require.Error(t, res.err)
	assert.Equal(t, exitUsage, exitCode(res.err))
}

func TestRun_MetricsFile(t *testing.T) {
	dir := setupEnv(t)
	fc := &fakeCatalog{listing: `[{"kind":"Component","metadata":{"name":"svc1","uid":"u1"}},{"kind":"Component","metadata":{"name":"x"}}]`}
	srv := httptest.NewServer(fc)
	defer srv.Close()

	metrics := filepath.Join(dir, "orphans.prom")
	res := runCLI(t, srv.URL, "--metrics-file", metrics)
	require.NoError(t, res.err)

	b, err := os.ReadFile(metrics)
	require.NoError(t, err)
	text := string(b)
	assert.Contains(t, text, "backstage_orphan_cleanup_found_entities 2")
	assert.Contains(t, text, `backstage_orphan_cleanup_entities{outcome="deleted"} 1`)
	assert.Contains(t, text, `backstage_orphan_cleanup_entities{outcome="skipped"} 1`)
	assert.Contains(t, text, "backstage_orphan_cleanup_fetch_failed 0")
}
