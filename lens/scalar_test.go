package lens

import (
	"strings"
	"testing"
	"time"

	"github.com/mtraver/base91"
	"github.com/stretchr/testify/assert"
)

type scalarPoint struct {
	X, Y int
	tag  string
}

func TestFormatScalar(t *testing.T) {
	t.Parallel()

	var nilSlice []int
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, "null"},
		{"nil_slice", nilSlice, "null"},
		{"true", true, "true"},
		{"false", false, "false"},
		{"int", -12, "-12"},
		{"uint8", uint8(200), "200"},
		{"float", 3.25, "3.25"},
		{"float_whole", 2.0, "2"},
		{"string", "text", "text"},
		{"long_string", strings.Repeat("x", 150), strings.Repeat("x", 100) + "..."},
		{"time", time.Date(1999, 12, 31, 23, 59, 58, 0, time.UTC), "1999-12-31 23:59:58"},
		{"time_pointer", func() any { tm := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC); return &tm }(), "2000-01-01 00:00:00"},
		{"defined_time", stamp(time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)), "2001-02-03 04:05:06"},
		{"struct", scalarPoint{X: 1}, "lens.scalarPoint(3 properties)"},
		{"slice", []int{1, 2, 3}, "array(3)"},
		{"map", map[string]bool{"a": true, "b": false}, "array(2)"},
		{"pairs", Pairs{{Key: "k", Value: 1}}, "array(1)"},
		{"bytes_utf8", []byte("hi"), "hi"},
		{"bytes_binary", []byte{0xff, 0xfe}, BinaryDisplayPrefix + base91.StdEncoding.EncodeToString([]byte{0xff, 0xfe})},
		{"complex", complex(0, 1), "(0+1i)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatScalar(tt.value))
		})
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		limit     int
		want      string
		truncated bool
	}{
		{"shorter", "abc", 5, "abc", false},
		{"equal", "abcde", 5, "abcde", false},
		{"longer", "abcdef", 5, "abcde...", true},
		{"runes", "日本語テキスト", 3, "日本語...", true},
		{"empty", "", 3, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := truncateString(tt.in, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.truncated, truncated)
		})
	}
}

func TestInspectorFormatScalar(t *testing.T) {
	t.Parallel()

	insp := NewInspector(Options{MaxStringLength: 3})
	defer insp.Close()

	assert.Equal(t, "abc...", insp.FormatScalar("abcdef"))
	assert.Equal(t, "42", insp.FormatScalar(42))
}
