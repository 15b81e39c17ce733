package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScripts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	return dir
}

func TestExpand(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"a.js":        "",
		"b.js":        "",
		"nested/c.js": "",
		"notes.txt":   "",
	})

	files, err := expand([]string{filepath.Join(dir, "**/*.js"), filepath.Join(dir, "a.js")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.js"),
		filepath.Join(dir, "b.js"),
		filepath.Join(dir, "nested/c.js"),
	}, files)

	files, err = expand([]string{filepath.Join(dir, "missing.js")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "missing.js")}, files)
}

func TestRunLocal(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"ok.js": "console.log('a');\nsetTimeout(() => console.log('b'), 0);\nconsole.log('c');",
	})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{filepath.Join(dir, "*.js")}, &stdout, &stderr)

	assert.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "ok.js (completed")
	assert.Contains(t, out, "[log] 1: a\n[log] 3: c\n[log] 2: b\n")
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{name: "syntax", source: "const x = ;", want: "syntax_error"},
		{name: "timeout", source: "while (true) {}", want: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeScripts(t, map[string]string{"s.js": tt.source})

			var stdout, stderr bytes.Buffer
			code := run(context.Background(), []string{"-timeout", "100ms", filepath.Join(dir, "s.js")}, &stdout, &stderr)

			assert.Equal(t, 1, code)
			assert.Contains(t, stdout.String(), tt.want)
		})
	}
}

func TestUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage")

	stderr.Reset()
	dir := t.TempDir()
	assert.Equal(t, 2, run(context.Background(), []string{filepath.Join(dir, "*.js")}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "no files matched")
}
