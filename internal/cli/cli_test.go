package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/docdesk/internal/testbackend"
)

func strptr(s string) *string { return &s }

type env struct {
	srv      *testbackend.Server
	stateDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Chdir(dir)
	srv := testbackend.New(t,
		testbackend.Doc{DocID: 1, Filename: "policy.pdf", Category: "HR", Author: strptr("alice"), UploadDate: "2025-06-10T09:00:00", Summary: strptr("Leave rules"), Content: "leave policy"},
		testbackend.Doc{DocID: 2, Filename: "budget.docx", Category: "Finance", UploadDate: "2025-05-01T09:00:00", Content: "budget plan"},
	)
	return &env{srv: srv, stateDir: filepath.Join(dir, "state")}
}

// exec runs one command line against the fake backend and returns stdout and stderr.
func (e *env) exec(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd(Options{Build: BuildInfo{Version: "1.2.3", BuildDate: "2025-06-10"}})
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--base-url", e.srv.URL, "--state-dir", e.stateDir, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (e *env) login(t *testing.T) {
	t.Helper()
	out, _, err := e.exec(t, "", "login", "-u", testbackend.Username, "-p", testbackend.Password)
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as admin (Admin)")
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	out, _, err := e.exec(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "docdesk 1.2.3 (2025-06-10)\n", out)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	out, _, err := e.exec(t, "", "health")
	require.NoError(t, err)
	assert.Equal(t, "healthy  indexed=2 mappings=2\n", out)
}

func TestLogin_PersistsAcrossInvocations(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.exec(t, "", "list")
	require.Error(t, err)
	assert.Contains(t, Message(err), "not logged in")

	e.login(t)

	out, _, err := e.exec(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "admin  role=Admin  uuid=u-admin")

	out, _, err = e.exec(t, "", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)

	_, _, err = e.exec(t, "", "whoami")
	require.Error(t, err)
}

func TestLogin_PasswordFromStdin(t *testing.T) {
	e := newEnv(t)
	out, _, err := e.exec(t, testbackend.Password+"\n", "login", "-u", testbackend.Username)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as admin")
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.exec(t, "", "login", "-u", "admin", "-p", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Incorrect username or password", Message(err))
}

func TestRegister(t *testing.T) {
	e := newEnv(t)

	out, _, err := e.exec(t, "secret1\nsecret1\n", "register", "-u", "carol", "--role", "HR")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered carol")

	_, _, err = e.exec(t, "", "register", "-u", "carol", "-p", "secret1", "--confirm", "other1", "--role", "HR")
	require.Error(t, err)
	assert.Contains(t, Message(err), "confirm")
	assert.Equal(t, 1, e.srv.Hits("POST /users/"), "validation failure never reaches the backend")

	_, _, err = e.exec(t, "", "register", "-u", "admin", "-p", "secret1", "--confirm", "secret1", "--role", "Admin")
	require.Error(t, err)
	assert.Equal(t, "Username already registered", Message(err))
}

func TestListFiltersAndJSON(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.exec(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "policy.pdf")
	assert.Contains(t, out, "budget.docx")
	assert.Contains(t, out, "Unknown")

	out, _, err = e.exec(t, "", "list", "--category", "HR")
	require.NoError(t, err)
	assert.Contains(t, out, "policy.pdf")
	assert.NotContains(t, out, "budget.docx")

	out, _, err = e.exec(t, "", "--json", "list", "--author", "alice")
	require.NoError(t, err)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "policy.pdf", docs[0]["Filename"])

	_, _, err = e.exec(t, "", "list", "--date", "yesterday")
	require.Error(t, err)
}

func TestGetAndDownload(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.exec(t, "", "get", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Leave rules")
	assert.Contains(t, out, "leave policy")

	_, _, err = e.exec(t, "", "get", "404")
	require.Error(t, err)
	assert.Equal(t, "Document not found", Message(err))

	dir := t.TempDir()
	out, _, err = e.exec(t, "", "download", "1", "--dir", dir)
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(dir, "policy.pdf"), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "leave policy", string(b))
}

func TestUpload(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	png := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(txt, []byte("meeting notes"), 0o600))
	require.NoError(t, os.WriteFile(png, []byte{0x89, 'P', 'N', 'G'}, 0o600))

	out, errOut, err := e.exec(t, "", "upload", txt, png)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 files not uploaded", err.Error())
	assert.Contains(t, out, "notes.txt  [")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "photo.png  photo.png: unsupported file type")
	assert.Contains(t, errOut, "[info] Uploaded notes.txt")
	assert.Contains(t, errOut, "[error] photo.png: unsupported file type")
	assert.Equal(t, 1, e.srv.Hits("POST /documents/"))
	assert.Len(t, e.srv.Docs(), 3)
}

func TestSearch(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.exec(t, "", "search", "budget")
	require.NoError(t, err)
	assert.Contains(t, out, "budget.docx")
	assert.Contains(t, out, "SCORE")
	assert.NotContains(t, out, "policy.pdf")

	_, _, err = e.exec(t, "", "search", "ab")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 3")
	assert.Equal(t, 1, e.srv.Hits("GET /search/"))
}

func TestLogs(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.exec(t, "", "logs", "--skip", "0", "--limit", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "login")
	assert.Contains(t, out, "user=u-admin doc=-")
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	e := newEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("base_url: http://127.0.0.1:1\n"), 0o600))

	// --base-url from exec wins over the file
	out, _, err := e.exec(t, "", "--config", cfgPath, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")
}
