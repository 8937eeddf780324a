package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExtractFromStdin(t *testing.T) {
	report := "player's cooldowns\n:clock4: ~-~ **Hunt** (`1h 2m 3s`)\n:white_check_mark: **Daily**\n:clock4: **Farm** (`soon`)\n"
	out, err := execute(t, report, "extract")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(out, "Hunt") || !strings.Contains(out, "1h2m3s") {
		t.Fatalf("missing Hunt record in %q", out)
	}
	if !strings.Contains(out, "1 tracked, 1 skipped") {
		t.Fatalf("unexpected summary in %q", out)
	}
}

func TestCheckConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte("telegram:\n  token: \"123:abc\"\nrpg:\n  game_bot_ids: [555]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "", "check", good)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "is valid") {
		t.Fatalf("unexpected output %q", out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("telegram:\n  token: \"\"\nrpg:\n  game_bot_ids: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "", "check", bad); err == nil {
		t.Fatal("expected validation error")
	}
}
