package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	root := buildRootCmd(&options{getenv: func(k string) string { return env[k] }})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, nil, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "scoringd dev") {
		t.Fatalf("out=%q", out)
	}
}

func TestMainWithArgs_UnknownCommand_Exit1(t *testing.T) {
	if code := MainWithArgs([]string{"wat"}); code != 1 {
		t.Fatalf("expected exit code 1 for unknown command, got %d", code)
	}
}

func TestResolveModel_FromDir(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, "m.gguf")
	if err := os.WriteFile(want, []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := runCLI(t, map[string]string{"AZUREML_MODEL_DIR": dir}, "resolve-model")
	if err != nil {
		t.Fatalf("resolve-model: %v", err)
	}
	if strings.TrimSpace(out) != want {
		t.Fatalf("out=%q want %q", out, want)
	}
}

func TestResolveModel_FlagBeatsEnv(t *testing.T) {
	env := map[string]string{"model_path": "/env/model.gguf"}
	out, err := runCLI(t, env, "resolve-model", "--model-path", "/flag/model.gguf")
	if err != nil {
		t.Fatalf("resolve-model: %v", err)
	}
	if strings.TrimSpace(out) != "/flag/model.gguf" {
		t.Fatalf("out=%q", out)
	}

	out, err = runCLI(t, env, "resolve-model")
	if err != nil {
		t.Fatalf("resolve-model: %v", err)
	}
	if strings.TrimSpace(out) != "/env/model.gguf" {
		t.Fatalf("out=%q", out)
	}
}

func TestResolveModel_AllListsCandidatesInSearchOrder(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "v1", "a.gguf")
	top := filepath.Join(dir, "z.gguf")
	if err := os.MkdirAll(filepath.Dir(nested), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, p := range []string{nested, top} {
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	out, err := runCLI(t, nil, "resolve-model", "--model-dir", dir, "--all")
	if err != nil {
		t.Fatalf("resolve-model --all: %v", err)
	}
	if got, want := strings.TrimSpace(out), top+"\n"+nested; got != want {
		t.Fatalf("out=%q want %q", got, want)
	}

	if _, err := runCLI(t, nil, "resolve-model", "--all"); err == nil {
		t.Fatal("expected error for --all without a model directory")
	}
}

func TestResolveModel_NoneConfigured(t *testing.T) {
	if _, err := runCLI(t, nil, "resolve-model"); err == nil {
		t.Fatalf("expected error without model path or dir")
	}
}

func TestLoad_ConfigFileAndValidation(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "scoringd.yaml")
	if err := os.WriteFile(p, []byte("model_path: /file/model.gguf\nserver:\n  port: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := runCLI(t, nil, "resolve-model", "--config", p)
	if err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Fatalf("expected port validation error, got %v", err)
	}
}
