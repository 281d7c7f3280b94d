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

	"github.com/mesh-intelligence/notegraph/internal/paths"
	"github.com/mesh-intelligence/notegraph/internal/workspace"
	"github.com/mesh-intelligence/notegraph/pkg/ident"
)

const projectsTree = `
tree:
  - name: Projects
    singleton: true
    labels:
      - {name: area, value: work}
    children:
      - title: Alpha
        labels:
          - {name: status, value: active}
      - title: Beta
`

// testEnv runs the CLI in process against isolated directories.
type testEnv struct {
	t         *testing.T
	configDir string
	dataDir   string
	treeDir   string
}

type runResult struct {
	code   int
	stdout string
	stderr string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv(paths.EnvConfigDir, "")
	t.Setenv(paths.EnvDataDir, "")
	t.Setenv("NOTEGRAPH_BACKEND", "")
	t.Setenv("NOTEGRAPH_LOG_LEVEL", "")
	env := &testEnv{
		t:         t,
		configDir: filepath.Join(base, "config"),
		dataDir:   filepath.Join(base, "data"),
		treeDir:   filepath.Join(base, "trees"),
	}
	require.NoError(t, os.MkdirAll(env.treeDir, 0o755))
	return env
}

func (e *testEnv) run(args ...string) runResult {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...)
	code := Run(context.Background(), full, &stdout, &stderr)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func (e *testEnv) mustRun(args ...string) runResult {
	e.t.Helper()
	res := e.run(args...)
	require.Equal(e.t, exitSuccess, res.code, "notegraph %v\nstdout: %s\nstderr: %s", args, res.stdout, res.stderr)
	return res
}

func (e *testEnv) writeTree(name, doc string) string {
	e.t.Helper()
	path := filepath.Join(e.treeDir, name)
	require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)

	res := env.mustRun("version")
	assert.Contains(t, res.stdout, "notegraph v"+Version)

	res = env.mustRun("--json", "version")
	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, Version, out["version"])
	assert.Equal(t, modulePath, out["module"])
}

func TestInit(t *testing.T) {
	env := newTestEnv(t)

	res := env.mustRun("init")
	assert.Contains(t, res.stdout, "notegraph initialized")

	data, err := os.ReadFile(filepath.Join(env.configDir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend: sqlite")
	assert.Contains(t, string(data), "data_dir: "+env.dataDir)

	res = env.mustRun("--json", "init")
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, false, out["config_written"])
	assert.Equal(t, env.dataDir, out["data_dir"])
}

func TestApplyShowSearch(t *testing.T) {
	env := newTestEnv(t)
	env.writeTree("work/projects.yaml", projectsTree)
	pattern := filepath.Join(env.treeDir, "**", "*.yaml")

	res := env.mustRun("apply", "--dry-run", pattern)
	assert.True(t, strings.HasPrefix(res.stdout, "would apply 1 definitions: "), res.stdout)

	res = env.mustRun("apply", pattern)
	assert.True(t, strings.HasPrefix(res.stdout, "applied 1 definitions: "), res.stdout)

	res = env.mustRun("--json", "apply", pattern)
	var applied workspace.ApplyResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &applied))
	assert.Zero(t, applied.Changes)
	assert.Equal(t, []string{ident.Hash("Projects")}, applied.Notes)

	projectsID := ident.Hash("Projects")
	res = env.mustRun("show", projectsID)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Projects ["+projectsID+"] #area=work"), lines[0])
	assert.Contains(t, lines[0], "#cssClass=notegraphDeclarative")
	assert.True(t, strings.HasPrefix(lines[1], "  Alpha ["), lines[1])
	assert.Contains(t, lines[1], "#status=active")
	assert.True(t, strings.HasPrefix(lines[2], "  Beta ["), lines[2])

	res = env.mustRun("--json", "show", "--depth", "0", projectsID)
	var view workspace.NoteView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &view))
	assert.Equal(t, "Projects", view.Title)
	assert.Equal(t, 2, view.ChildCount)
	assert.Empty(t, view.Children)

	res = env.mustRun("search", "#status=active")
	assert.Contains(t, res.stdout, "Alpha [")
	assert.NotContains(t, res.stdout, "Beta")

	res = env.mustRun("search", "Nothing", "here")
	assert.Equal(t, "No notes found.\n", res.stdout)

	res = env.mustRun("--json", "search", "--ancestor", projectsID, "--limit", "1", "#status")
	var found []workspace.NoteView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "Alpha", found[0].Title)

	res = env.mustRun("--json", "search", "Nothing")
	assert.Equal(t, "[]\n", res.stdout)
}

func TestBackupCommand(t *testing.T) {
	env := newTestEnv(t)

	res := env.mustRun("backup", "nightly")
	assert.Equal(t, "backup \"nightly\" written\n", res.stdout)
	_, err := os.Stat(filepath.Join(env.dataDir, "backup", "backup-nightly"))
	assert.NoError(t, err)
}

func TestExitCodes(t *testing.T) {
	env := newTestEnv(t)
	bad := env.writeTree("bad.yaml", "tree:\n  - name: Leaf\n    leaf: true\n    children:\n      - title: Child\n")
	env.writeTree("unknown.yaml", "tree:\n  - name: X\n    colour: red\n")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"--bogus"}, exitUserError},
		{"unknown command", []string{"frobnicate"}, exitUserError},
		{"missing args", []string{"apply"}, exitUserError},
		{"no matching files", []string{"apply", filepath.Join(env.treeDir, "*.yml")}, exitUserError},
		{"leaf with children", []string{"apply", bad}, exitUserError},
		{"unknown yaml key", []string{"apply", filepath.Join(env.treeDir, "unknown.yaml")}, exitUserError},
		{"missing note", []string{"show", "missing"}, exitUserError},
		{"negative depth", []string{"show", "--depth", "-1"}, exitUserError},
		{"negative limit", []string{"search", "--limit", "-1", "x"}, exitUserError},
		{"bad backup name", []string{"backup", ".."}, exitUserError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.run(tt.args...)
			assert.Equal(t, tt.want, res.code, res.stderr)
			assert.True(t, strings.HasPrefix(res.stderr, "error: ") || strings.Contains(res.stderr, "\nerror: "), res.stderr)
		})
	}
}

func TestCommandError(t *testing.T) {
	assert.NoError(t, commandError(nil))

	var ee *exitError
	require.ErrorAs(t, commandError(workspace.ErrNoDefinitions), &ee)
	assert.Equal(t, exitUserError, ee.code)

	require.ErrorAs(t, commandError(os.ErrPermission), &ee)
	assert.Equal(t, exitSysError, ee.code)
	assert.ErrorIs(t, ee, os.ErrPermission)
}
