package cmd

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatchLens/go-debug-lens/lens"
)

// setArgs installs a fresh flag set and command line for a single ParseFlags call.
func setArgs(t *testing.T, args ...string) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	os.Args = append([]string{os.Args[0]}, args...)
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	})
}

func TestParseFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setArgs(t)

		flags, err := ParseFlags(nil)
		require.NoError(t, err)

		def := lens.DefaultConfig()
		assert.Equal(t, def.Endpoint, flags.Config.Endpoint)
		assert.Equal(t, def.Codec, flags.Config.Codec)
		assert.Equal(t, def.MaxDepth, flags.Config.MaxDepth)
		assert.Equal(t, def.Timeout, flags.Config.Timeout)
		assert.NotNil(t, flags.Custom)
		assert.Empty(t, flags.Custom)
		assert.Empty(t, flags.Args)
	})

	t.Run("standard_flags", func(t *testing.T) {
		spool := t.TempDir()
		setArgs(t, "-endpoint", "http://debug.local:9000", "-origin", "example.com/svc",
			"-environment", "ci", "-async", "-timeout", "3s", "-codec", "msgpack",
			"-compression", "zstd", "-spool", spool, "-cachemb", "8", "-maxdepth", "4",
			"-maxstrlen", "20", "value.json")

		flags, err := ParseFlags(nil)
		require.NoError(t, err)

		cfg := flags.Config
		assert.Equal(t, "http://debug.local:9000", cfg.Endpoint)
		assert.Equal(t, "example.com/svc", cfg.Origin)
		assert.Equal(t, "ci", cfg.Environment)
		assert.True(t, cfg.Async)
		assert.Equal(t, 3*time.Second, cfg.Timeout)
		assert.Equal(t, lens.CodecMsgpack, cfg.Codec)
		assert.Equal(t, lens.CompressionZstd, cfg.Compression)
		assert.Equal(t, spool, cfg.SpoolDir)
		assert.Equal(t, 8, cfg.CacheMB)
		assert.Equal(t, 4, cfg.MaxDepth)
		assert.Equal(t, 20, cfg.MaxStringLength)
		assert.Equal(t, []string{"value.json"}, flags.Args)
	})

	t.Run("config_file_with_override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lens.yaml")
		require.NoError(t, os.WriteFile(path, []byte("origin: from/file\ncodec: msgpack\nmax_depth: 3\n"), 0644))
		setArgs(t, "-config", path, "-maxdepth", "6")

		flags, err := ParseFlags(nil)
		require.NoError(t, err)

		assert.Equal(t, "from/file", flags.Config.Origin)
		assert.Equal(t, lens.CodecMsgpack, flags.Config.Codec)
		assert.Equal(t, 6, flags.Config.MaxDepth)
	})

	t.Run("unset_flags_keep_file_values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lens.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"compression": "snappy"}`), 0644))
		setArgs(t, "-config", path)

		flags, err := ParseFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, lens.CompressionSnappy, flags.Config.Compression)
	})

	t.Run("missing_config_file", func(t *testing.T) {
		setArgs(t, "-config", filepath.Join(t.TempDir(), "missing.yaml"))

		_, err := ParseFlags(nil)
		require.Error(t, err)
	})

	t.Run("invalid_options", func(t *testing.T) {
		setArgs(t, "-codec", "xml", "-maxdepth", "0")

		_, err := ParseFlags(nil)
		require.ErrorContains(t, err, "invalid options")
	})

	t.Run("capture_without_endpoint", func(t *testing.T) {
		capture := filepath.Join(t.TempDir(), "capture.jsonl")
		setArgs(t, "-endpoint", "", "-capture", capture)

		flags, err := ParseFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, capture, flags.Config.CaptureFile)
	})

	t.Run("custom_flags", func(t *testing.T) {
		setArgs(t, "-str", "val", "-num", "2", "-ok")
		cfs := []CustomFlag{
			{Name: "str", DefaultValue: "", Usage: "", Type: "string"},
			{Name: "num", DefaultValue: 0, Usage: "", Type: "int"},
			{Name: "ok", DefaultValue: false, Usage: "", Type: "bool"},
		}

		flags, err := ParseFlags(cfs)
		require.NoError(t, err)

		assert.Equal(t, "val", flags.Custom["str"])
		assert.Equal(t, "2", flags.Custom["num"])
		assert.Equal(t, "true", flags.Custom["ok"])
	})

	t.Run("custom_flags_with_defaults", func(t *testing.T) {
		setArgs(t)
		cfs := []CustomFlag{
			{Name: "defaultstr", DefaultValue: "default", Usage: "test string", Type: "string"},
			{Name: "defaultnum", DefaultValue: 42, Usage: "test int", Type: "int"},
			{Name: "defaultbool", DefaultValue: true, Usage: "test bool", Type: "bool"},
		}

		flags, err := ParseFlags(cfs)
		require.NoError(t, err)

		assert.Equal(t, "default", flags.Custom["defaultstr"])
		assert.Equal(t, "42", flags.Custom["defaultnum"])
		assert.Equal(t, "true", flags.Custom["defaultbool"])
	})

	t.Run("custom_flags_overriding_defaults", func(t *testing.T) {
		setArgs(t, "-overridestr", "overridden", "-overridenum", "100", "-overridebool=false")
		cfs := []CustomFlag{
			{Name: "overridestr", DefaultValue: "default", Usage: "test string", Type: "string"},
			{Name: "overridenum", DefaultValue: 42, Usage: "test int", Type: "int"},
			{Name: "overridebool", DefaultValue: true, Usage: "test bool", Type: "bool"},
		}

		flags, err := ParseFlags(cfs)
		require.NoError(t, err)

		assert.Equal(t, "overridden", flags.Custom["overridestr"])
		assert.Equal(t, "100", flags.Custom["overridenum"])
		assert.Equal(t, "false", flags.Custom["overridebool"])
	})
}
