package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iksnae/codetask-session/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const testToken = "test-token"

// cliEnv runs commands against a fake backend with a per-test cache and config
type cliEnv struct {
	backend      *testutil.FakeBackend
	server       *testutil.WSServer
	dir          string
	token        string
	user         string
	cacheBackend string
	cachePath    string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := testutil.CreateTempDir(t)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("CODETASK_SERVER", "")
	t.Setenv("CODETASK_TOKEN", "")
	t.Setenv("CODETASK_USER", "")

	config := "retry:\n  attempts: 1\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	backend := testutil.NewFakeBackend()
	return &cliEnv{
		backend:      backend,
		server:       testutil.NewWSServer(t, backend, testToken),
		dir:          dir,
		token:        testToken,
		user:         "alice",
		cacheBackend: "file",
		cachePath:    filepath.Join(dir, "sessions"),
	}
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes the root command with stdin as input
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	resetFlags(rootCmd)

	full := append([]string{}, args...)
	full = append(full,
		"--config", filepath.Join(e.dir, "config.yaml"),
		"--server", e.server.URL(),
		"--token", e.token,
		"--user", e.user,
		"--cache-backend", e.cacheBackend,
		"--cache-path", e.cachePath,
	)

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(full)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)

	err := rootCmd.ExecuteContext(context.Background())
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// mustRun is run that fails the test on error
func (e *cliEnv) mustRun(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	res := e.run(t, stdin, args...)
	if res.err != nil {
		t.Fatalf("%s: error = %v\nstderr:\n%s", strings.Join(args, " "), res.err, res.stderr)
	}
	return res
}

// resetFlags restores every flag to its default between executions
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func assertContains(t *testing.T, what, got string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(got, w) {
			t.Errorf("%s missing %q in:\n%s", what, w, got)
		}
	}
}
