package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gengen/zwint"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadParsesRules(t *testing.T) {
	path := writeRules(t, `
rules:
  - device_num: 5
    key: v1
    direction: monitor
    pattern: "^01 .. 00 04"
  - device_num: 1
    key: intercept13
    direction: intercept
    pattern: "^01 .. 00 13"
    response: "06"
    oneshot: true
`)
	specs, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("specs = %d, want 2", len(specs))
	}
	if specs[0].Direction != zwint.DirectionMonitor {
		t.Errorf("specs[0].Direction = %v, want Monitor", specs[0].Direction)
	}
	if specs[1].Direction != zwint.DirectionIntercept || !specs[1].Oneshot {
		t.Errorf("specs[1] = %+v, want Intercept+Oneshot", specs[1])
	}
}

func TestLoadRejectsBadDirection(t *testing.T) {
	path := writeRules(t, `
rules:
  - key: k
    direction: sideways
    pattern: "."
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an invalid direction")
	}
}

func TestLoadRejectsMissingKey(t *testing.T) {
	path := writeRules(t, `
rules:
  - pattern: "."
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a missing key")
	}
}

func TestLoadRejectsMissingPattern(t *testing.T) {
	path := writeRules(t, `
rules:
  - key: k
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a missing pattern")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
