package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

const sampleBars = `time,open,high,low,close,volume
2024-01-01,100,101,99,100,1000
2024-01-02,100,102,99,101,1000
2024-01-03,101,103,100,102,1000
`

func writeFiles(t *testing.T, cfg string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	csvPath := filepath.Join(dir, "bars.csv")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(csvPath, []byte(sampleBars), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return cfgPath, csvPath
}

func TestRunReplaysBars(t *testing.T) {
	cfgPath, csvPath := writeFiles(t, "app:\n  log_level: error\n")
	if code := run([]string{"-config", cfgPath, "-csv", csvPath}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
}

func TestRunFailsWhenMetricsPortBusy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfgPath, csvPath := writeFiles(t, "app:\n  log_level: error\n  metrics_addr: "+ln.Addr().String()+"\n")
	if code := run([]string{"-config", cfgPath, "-csv", csvPath}); code != 1 {
		t.Fatalf("expected exit 1 on a busy metrics port, got %d", code)
	}
}

func TestRunRequiresCSV(t *testing.T) {
	if code := run([]string{"-config", "missing.yaml"}); code != 2 {
		t.Fatalf("expected usage exit 2, got %d", code)
	}
}
