package main

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`\(([0-9a-f-]{36})\)`)

func runCLI(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--driver", "sqlite", "--dsn", dsn, "--log-level", "error"}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, dsn string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, dsn, args...)
	require.NoError(t, err, "fisctl %s", strings.Join(args, " "))
	return out
}

func extractID(t *testing.T, out string) string {
	t.Helper()
	m := idPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, "no id in %q", out)
	return m[1]
}

func TestCLIAccountLifecycle(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "fis.db")

	out := mustRun(t, dsn, "migrate")
	assert.Contains(t, out, "Applied 0001_accounts")
	assert.Contains(t, out, "Applied 0002_sessions")

	out = mustRun(t, dsn, "migrate")
	assert.Contains(t, out, "Database is up to date")

	profileID := extractID(t, mustRun(t, dsn, "profile", "add",
		"--first-name", "Ada", "--last-name", "Lovelace",
		"--email", "ada@example.edu", "--department", "Mathematics"))

	out = mustRun(t, dsn, "account", "create",
		"--username", "ada", "--password", "secret1", "--profile", profileID)
	assert.Contains(t, out, "as faculty")
	facultyID := extractID(t, out)

	out = mustRun(t, dsn, "account", "create",
		"--username", "root", "--password", "secret1", "--role", "Administrator")
	assert.Contains(t, out, "as administrator")
	adminID := extractID(t, out)

	out = mustRun(t, dsn, "can", facultyID, profileID)
	assert.Contains(t, out, "view=true edit=true delete=false")

	out = mustRun(t, dsn, "can", adminID, profileID)
	assert.Contains(t, out, "view=true edit=true delete=true")

	out = mustRun(t, dsn, "account", "list")
	assert.Contains(t, out, "ada")
	assert.Contains(t, out, "root")

	mustRun(t, dsn, "unlink", facultyID)

	out = mustRun(t, dsn, "can", facultyID, profileID)
	assert.Contains(t, out, "view=true edit=false delete=false")

	out = mustRun(t, dsn, "profile", "unlinked")
	assert.Contains(t, out, "Ada Lovelace")

	mustRun(t, dsn, "link", facultyID, profileID)
	out = mustRun(t, dsn, "profile", "unlinked")
	assert.NotContains(t, out, "Ada Lovelace")

	out = mustRun(t, dsn, "account", "delete", facultyID)
	assert.Contains(t, out, "Deleted "+facultyID)

	out = mustRun(t, dsn, "profile", "unlinked")
	assert.Contains(t, out, "Ada Lovelace")
}

func TestCLILinkRejectsAdministrator(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "fis.db")
	mustRun(t, dsn, "migrate")

	profileID := extractID(t, mustRun(t, dsn, "profile", "add",
		"--first-name", "Grace", "--last-name", "Hopper"))
	adminID := extractID(t, mustRun(t, dsn, "account", "create",
		"--username", "root", "--password", "secret1", "--role", "administrator"))

	_, err := runCLI(t, dsn, "link", adminID, profileID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only faculty accounts")
}

func TestCLIAccountCreateValidation(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "fis.db")
	mustRun(t, dsn, "migrate")

	_, err := runCLI(t, dsn, "account", "create", "--username", "ab", "--password", "secret1")
	require.Error(t, err)

	_, err = runCLI(t, dsn, "account", "create", "--username", "valid", "--password", "secret1", "--role", "dean")
	require.Error(t, err)

	mustRun(t, dsn, "account", "create", "--username", "valid", "--password", "secret1")
	_, err = runCLI(t, dsn, "account", "create", "--username", "valid", "--password", "secret1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username already exists")
}

func TestCLISessionsPurge(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "fis.db")
	mustRun(t, dsn, "migrate")

	out := mustRun(t, dsn, "sessions", "purge")
	assert.Contains(t, out, "Removed 0 idle session(s)")
}
