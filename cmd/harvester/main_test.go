package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "harvester.toml")
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\ntemp_dir = %q\nmeta_dir = %q\n",
		filepath.Join(base, "data"),
		filepath.Join(base, "tmp"),
		filepath.Join(base, "meta"),
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	configPath := writeTestConfig(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	out, _, err = runCLI(t, configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "concurrency:")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init to fail without --overwrite")
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init --overwrite: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "harvester")
}

func TestRunRequiresCollections(t *testing.T) {
	configPath := writeTestConfig(t)
	_, _, err := runCLI(t, configPath, "run")
	if err == nil {
		t.Fatal("expected error when no collections are named")
	}
	requireContains(t, err.Error(), "no collections")
}

func TestReportEmpty(t *testing.T) {
	configPath := writeTestConfig(t)
	out, _, err := runCLI(t, configPath, "report")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	requireContains(t, out, "no collections harvested yet")
}
