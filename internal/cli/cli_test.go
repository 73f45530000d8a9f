package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	_ "github.com/JonMunkholm/rulesync/internal/core/tables"
)

// =============================================================================
// Test Helpers
// =============================================================================

type result struct {
	stdout string
	stderr string
	code   int
}

// cliEnv returns configuration for a fresh sqlite database in a temp dir.
func cliEnv(t *testing.T) map[string]string {
	t.Helper()
	return map[string]string{
		"DB_DRIVER":    "sqlite",
		"DATABASE_URL": filepath.Join(t.TempDir(), "rulesync.db"),
		"LOG_LEVEL":    "error",
		"USER":         "tester",
	}
}

func run(t *testing.T, env map[string]string, stdin string, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	opts := &RootOptions{Getenv: func(k string) string { return env[k] }}
	code := Execute(context.Background(), opts, args, strings.NewReader(stdin), &stdout, &stderr)

	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

// initDB provisions the tables and fails the test if that does not work.
func initDB(t *testing.T, env map[string]string) {
	t.Helper()
	res := run(t, env, "", "init-db")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// =============================================================================
// Root Command Tests
// =============================================================================

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand(nil)

	assert.Equal(t, "rulesync", cmd.Use)

	for _, name := range []string{"schemas", "parse", "render", "plan", "sync", "history", "init-db"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	assert.NotNil(t, cmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("format"))
}

func TestExecute_InvalidFormat(t *testing.T) {
	res := run(t, nil, "", "schemas", "--format", "xml")

	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "invalid format")
}

func TestExecute_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"schemas", "--nope"}, "unknown flag: --nope"},
		{"missing argument", []string{"parse"}, "accepts 1 arg(s), received 0"},
		{"extra argument", []string{"schemas", "extra"}, "unknown command"},
		{"bad flag value", []string{"history", "--limit", "many"}, "invalid argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, nil, "", tt.args...)

			assert.Equal(t, ExitCommandError, res.code)
			assert.Contains(t, res.stderr, "(Code: CLI001)")
			assert.Contains(t, res.stderr, tt.want)
			assert.NotContains(t, res.stderr, "ERR000")
		})
	}
}

func TestExecute_UsageErrorJSON(t *testing.T) {
	res := run(t, nil, "", "parse", "--format", "json")
	assert.Equal(t, ExitCommandError, res.code)

	var resp struct {
		Status string        `json:"status"`
		Error  responseError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "CLI001", resp.Error.Code)
}

func TestExecute_MissingDatabaseURL(t *testing.T) {
	res := run(t, map[string]string{"DB_DRIVER": "sqlite"}, "", "render", "assistant")

	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "DATABASE_URL")
}

// =============================================================================
// Offline Command Tests
// =============================================================================

func TestSchemas_Text(t *testing.T) {
	res := run(t, nil, "", "schemas")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	newGoldie(t).Assert(t, "schemas", []byte(res.stdout))
}

func TestSchemas_JSON(t *testing.T) {
	res := run(t, nil, "", "schemas", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var resp struct {
		Status string       `json:"status"`
		Data   []schemaView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "ccgroup", resp.Data[1].Domain)
	assert.Equal(t, "|", resp.Data[1].Delimiter)
	assert.Len(t, resp.Data[2].Fields, 14)
}

func TestParse_Text(t *testing.T) {
	res := run(t, nil, "Alice,Bob\r\nalice , dan\r\n\r\njustone\r\n", "parse", "assistant")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	newGoldie(t).Assert(t, "parse_assistant", []byte(res.stdout))
}

func TestParse_YAML(t *testing.T) {
	res := run(t, nil, "a|b|c|d|e|f\nshort|line\n", "parse", "ccgroup", "--format", "yaml")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var resp struct {
		Status string    `yaml:"status"`
		Data   parseView `yaml:"data"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Lines)
	require.Len(t, resp.Data.Records, 1)
	assert.Equal(t, "f", resp.Data.Records[0]["cc_group_id"])
	require.Len(t, resp.Data.Skipped, 1)
	assert.Equal(t, 2, resp.Data.Skipped[0].Line)
}

func TestParse_UnknownDomain(t *testing.T) {
	res := run(t, nil, "", "parse", "nope")

	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "SYNC001")
}

func TestParse_MissingFile(t *testing.T) {
	res := run(t, nil, "", "parse", "assistant", "--file", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Equal(t, ExitCommandError, res.code)
}

// =============================================================================
// Database Command Tests
// =============================================================================

func TestSyncRenderRoundTrip(t *testing.T) {
	env := cliEnv(t)
	initDB(t, env)

	res := run(t, env, "Alice,Bob\nalice,carol\n", "sync", "assistant")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "assistant: 2 inserted, 0 deleted, 0 retained, 0 skipped")

	res = run(t, env, "", "render", "assistant")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "alice,bob\r\nalice,carol\n", res.stdout)
	assert.Contains(t, res.stderr, "version: 0c871c1d884d8290 (2 rows)")

	// Resubmitting the rendered text changes nothing
	res = run(t, env, "alice,bob\r\nalice,carol\n", "sync", "assistant", "--version", "0c871c1d884d8290")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "0 inserted, 0 deleted, 2 retained")
}

func TestPlan_Text(t *testing.T) {
	env := cliEnv(t)
	initDB(t, env)

	res := run(t, env, "alice,bob\nalice,carol\n", "sync", "assistant")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = run(t, env, "alice,bob\nalice,dan\nbroken\n", "plan", "assistant")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	newGoldie(t).Assert(t, "plan_assistant", []byte(res.stdout))

	// Nothing was written
	res = run(t, env, "", "render", "assistant")
	assert.Equal(t, "alice,bob\r\nalice,carol\n", res.stdout)
}

func TestSync_StaleVersion(t *testing.T) {
	env := cliEnv(t)
	initDB(t, env)

	res := run(t, env, "alice,bob\n", "sync", "assistant", "--version", "0000000000000000")

	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "SYNC002")
}

func TestSync_RefusesWipeWithoutFlag(t *testing.T) {
	env := cliEnv(t)
	initDB(t, env)

	res := run(t, env, "alice,bob\n", "sync", "assistant")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = run(t, env, "", "sync", "assistant")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "refusing to delete all 1 rows")

	res = run(t, env, "", "sync", "assistant", "--allow-wipe")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "0 inserted, 1 deleted, 0 retained")
}

func TestSync_JSONAndHistory(t *testing.T) {
	env := cliEnv(t)
	initDB(t, env)

	res := run(t, env, "a|b|c|d|e|f\n", "sync", "ccgroup", "--format", "json",
		"--request-id", "req-42", "--client-ip", "10.0.0.9")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Inserted     int                 `json:"inserted"`
			Version      string              `json:"version"`
			InsertedRows []map[string]string `json:"insertedRows"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Inserted)
	require.Len(t, resp.Data.InsertedRows, 1)
	assert.Equal(t, "a", resp.Data.InsertedRows[0]["audience_type"])

	res = run(t, env, "", "history", "--domain", "ccgroup", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var hist struct {
		Data []struct {
			Action    string `json:"action"`
			Severity  string `json:"severity"`
			Actor     string `json:"actor"`
			UserAgent string `json:"userAgent"`
			IPAddress string `json:"ipAddress"`
			RequestID string `json:"requestId"`
			Version   string `json:"version"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &hist))
	require.Len(t, hist.Data, 1)
	assert.Equal(t, "sync", hist.Data[0].Action)
	assert.Equal(t, "high", hist.Data[0].Severity)
	assert.Equal(t, "tester", hist.Data[0].Actor)
	assert.Equal(t, userAgent, hist.Data[0].UserAgent)
	assert.Equal(t, "req-42", hist.Data[0].RequestID)
	assert.Equal(t, "10.0.0.9", hist.Data[0].IPAddress)
	assert.Equal(t, resp.Data.Version, hist.Data[0].Version)
}

func TestHistory_Text(t *testing.T) {
	env := cliEnv(t)
	initDB(t, env)

	run(t, env, "alice,bob\n", "sync", "assistant")
	run(t, env, "", "sync", "assistant", "--allow-wipe")

	res := run(t, env, "", "history")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ACTION")
	assert.Contains(t, lines[1], "full_wipe")
	assert.Contains(t, lines[1], "critical")
	assert.Contains(t, lines[2], "+1 -0 =0")
}

func TestError_JSONEnvelope(t *testing.T) {
	env := cliEnv(t)
	initDB(t, env)

	res := run(t, env, "alice,bob\n", "sync", "assistant", "--version", "stale", "--format", "json")
	assert.Equal(t, ExitFailure, res.code)

	var resp struct {
		Status string        `json:"status"`
		Error  responseError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "SYNC002", resp.Error.Code)
	assert.Empty(t, resp.Error.Detail)
}

func TestSync_InvalidClientIP(t *testing.T) {
	env := cliEnv(t)
	initDB(t, env)

	res := run(t, env, "alice,bob\n", "sync", "assistant", "--client-ip", "not-an-ip")

	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "invalid --client-ip")

	res = run(t, env, "", "render", "assistant")
	assert.Empty(t, res.stdout)
}

func TestHistory_UnknownDomain(t *testing.T) {
	res := run(t, cliEnv(t), "", "history", "--domain", "widgets")

	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, `unknown domain "widgets": must be one of assistant, ccgroup, privilege`)
}

func TestSync_UpperCaseRowsSurviveOwnRender(t *testing.T) {
	env := cliEnv(t)
	initDB(t, env)

	// Insert a row the way another tool would, without case folding
	res := run(t, env, "alice,bob\n", "sync", "assistant")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	db, err := sql.Open("sqlite3", env["DATABASE_URL"])
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE "moderator_assistants" SET "moderator_username" = 'Alice'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	rendered := run(t, env, "", "render", "assistant")
	require.Equal(t, "Alice,bob\n", rendered.stdout)

	res = run(t, env, rendered.stdout, "sync", "assistant")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "0 inserted, 0 deleted, 1 retained")
}
