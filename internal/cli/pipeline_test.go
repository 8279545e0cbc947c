package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalSchemaJSON = `{
  "_info": {"title": "elasticsearch-specification"},
  "endpoints": [
    {"name": "ping", "urls": [{"path": "/", "methods": ["HEAD"]}]},
    {"name": "indices.create",
     "description": "Create an index.",
     "urls": [{"path": "/{index}", "methods": ["PUT"]}],
     "request": {"namespace": "indices", "name": "CreateRequest"}}
  ],
  "types": [
    {"kind": "request", "name": {"namespace": "indices", "name": "CreateRequest"},
     "path": [{"name": "index", "required": true, "type": {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "string"}}}],
     "body": {"kind": "properties"}}
  ]
}`

func captureStdout(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()
	fn()
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func TestGeneratePipeline_DryRun(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	if err := os.WriteFile(schemaPath, []byte(minimalSchemaJSON), 0o600); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	outDir := filepath.Join(dir, "out")

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"generate", "--input", schemaPath, "--out", outDir, "--dry-run"})

	out := captureStdout(func() {
		if err := root.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	})
	if !strings.Contains(out, "Planned writes to") {
		t.Fatalf("expected dry-run plan output, got: %s", out)
	}
	if !strings.Contains(out, "indices.gen.go") {
		t.Fatalf("plan should list the namespace file, got: %s", out)
	}
	// Dry-run should not create the directory
	if _, err := os.Stat(outDir); err == nil {
		t.Fatalf("expected no writes on dry-run")
	}
}

func TestGeneratePipeline_WritesTree(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	if err := os.WriteFile(schemaPath, []byte(minimalSchemaJSON), 0o600); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	outDir := filepath.Join(dir, "out")

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"generate", "--input", schemaPath, "--out", outDir})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	for _, name := range []string{"support.gen.go", "core.gen.go", "indices.gen.go", "registry.gen.go"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(outDir, "indices.gen.go"))
	if err != nil {
		t.Fatalf("read generated file: %v", err)
	}
	if !strings.Contains(string(data), "NewIndicesCreateCommand") {
		t.Fatalf("generated constructor missing:\n%s", data)
	}
}

func TestGeneratePipeline_BadSchemaFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	if err := os.WriteFile(schemaPath, []byte(`{"endpoints": [], "types": [], "surprise": true}`), 0o600); err != nil {
		t.Fatalf("write schema: %v", err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"generate", "--input", schemaPath, "--out", filepath.Join(dir, "out")})

	err := root.Execute()
	if err == nil {
		t.Fatalf("expected an error for an unknown top-level key")
	}
	if !strings.Contains(err.Error(), "surprise") {
		t.Fatalf("error should name the unknown key: %v", err)
	}
}
