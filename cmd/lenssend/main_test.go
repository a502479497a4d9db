package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatchLens/go-debug-lens/lens"
)

func TestRun(t *testing.T) {
	t.Parallel()

	valuesFile := filepath.Join(t.TempDir(), "values.json")
	require.NoError(t, os.WriteFile(valuesFile, []byte(`{"a": 1} [2, 3]`), 0644))

	tests := []struct {
		name    string
		custom  map[string]string
		wantErr string
	}{
		{"dump", map[string]string{"type": lens.EventDump, "file": valuesFile}, ""},
		{"missing_file", map[string]string{"type": lens.EventDump, "file": filepath.Join(t.TempDir(), "none.json")}, "open values"},
		{"unsupported_type", map[string]string{"type": "trace", "file": valuesFile}, "unsupported event type"},
		{"diff_one_value", map[string]string{"type": lens.EventDiff, "file": writeValues(t, `{"a": 1}`)}, "exactly two values"},
		{"replay_memory_spool", map[string]string{"replay": "true"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := lens.DefaultConfig()
			cfg.Endpoint = ""
			cfg.CaptureFile = filepath.Join(t.TempDir(), "capture.jsonl")
			client, err := lens.NewClient(cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = client.Close() })

			err = run(client, tt.custom)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func writeValues(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "values.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
