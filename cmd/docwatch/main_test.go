package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// executeCmd runs a fresh command tree with args and returns captured stdout
// and any error. Stderr (logs, progress) is discarded.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

// writeConfig writes content to a config file in a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	output, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}

	for _, phrase := range []string{"docwatch dev", "commit: none", "built:  unknown"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestLogLevel_Invalid(t *testing.T) {
	_, err := executeCmd(t, "list", "-c", "unused.yaml", "--log-level", "loud")
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "invalid --log-level") {
		t.Errorf("error should mention --log-level, got: %v", err)
	}
}

func TestConfigFlagRequired(t *testing.T) {
	for _, name := range []string{"serve", "validate", "poll", "list"} {
		t.Run(name, func(t *testing.T) {
			_, err := executeCmd(t, name)
			if err == nil {
				t.Fatal("expected error without --config, got nil")
			}
			if !strings.Contains(err.Error(), "config") {
				t.Errorf("error should mention config flag, got: %v", err)
			}
		})
	}
}
