package lens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stackSampler struct{}

func (stackSampler) capture() []StackFrame {
	return CaptureStack()
}

func (*stackSampler) capturePtr() []StackFrame {
	return CaptureStack()
}

func TestNormalizeStack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  RawFrame
		want StackFrame
	}{
		{
			name: "empty",
			raw:  RawFrame{},
			want: StackFrame{File: "unknown", Line: 0, Function: "unknown", ArgCount: 0},
		},
		{
			name: "function_only",
			raw:  RawFrame{File: "main.go", Line: 12, Function: "run"},
			want: StackFrame{File: "main.go", Line: 12, Function: "run"},
		},
		{
			name: "type_and_call",
			raw:  RawFrame{File: "svc.php", Line: 3, Type: "Service", Call: "->", Function: "handle", Args: []any{1, "a"}},
			want: StackFrame{File: "svc.php", Line: 3, Function: "Service->handle", ArgCount: 2},
		},
		{
			name: "type_default_separator",
			raw:  RawFrame{Type: "pkg.(*T)", Function: "M"},
			want: StackFrame{File: "unknown", Function: "pkg.(*T).M"},
		},
		{
			name: "negative_line",
			raw:  RawFrame{File: "x.go", Line: -4, Function: "f"},
			want: StackFrame{File: "x.go", Line: 0, Function: "f"},
		},
		{
			name: "type_without_function",
			raw:  RawFrame{Type: "T"},
			want: StackFrame{File: "unknown", Function: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := NormalizeStack([]RawFrame{tt.raw})
			require.Len(t, frames, 1)
			assert.Equal(t, tt.want, frames[0])
		})
	}

	t.Run("nil_input", func(t *testing.T) {
		assert.Empty(t, NormalizeStack(nil))
	})
}

func TestCaptureTraceRemovesCaptureFrame(t *testing.T) {
	t.Parallel()

	raw := []RawFrame{
		{File: "lens.go", Line: 1, Function: "capture"},
		{File: "a.go", Line: 10, Function: "inner"},
		{File: "b.go", Line: 20, Function: "middle"},
		{File: "c.go", Line: 30, Function: "outer"},
	}

	frames := captureTrace(raw)
	require.Len(t, frames, len(raw)-1)
	assert.Equal(t, []string{"inner", "middle", "outer"},
		[]string{frames[0].Function, frames[1].Function, frames[2].Function})

	assert.Empty(t, captureTrace(nil))
	assert.Empty(t, captureTrace(raw[:1]))
}

func TestCaptureStack(t *testing.T) {
	t.Parallel()

	frames := CaptureStack()
	require.NotEmpty(t, frames)
	assert.Equal(t, "lens.TestCaptureStack", frames[0].Function)
	assert.True(t, strings.HasSuffix(frames[0].File, "stack_test.go"))
	assert.Positive(t, frames[0].Line)
	for _, f := range frames {
		assert.NotEqual(t, "lens.CaptureStack", f.Function)
	}

	t.Run("value_method", func(t *testing.T) {
		frames := stackSampler{}.capture()
		require.NotEmpty(t, frames)
		assert.Equal(t, "lens.stackSampler.capture", frames[0].Function)
	})

	t.Run("pointer_method", func(t *testing.T) {
		frames := (&stackSampler{}).capturePtr()
		require.NotEmpty(t, frames)
		assert.Equal(t, "lens.(*stackSampler).capturePtr", frames[0].Function)
	})

	t.Run("skip", func(t *testing.T) {
		var frames []StackFrame
		func() {
			frames = CaptureStackSkip(1) // skip the closure
		}()
		require.NotEmpty(t, frames)
		assert.Regexp(t, `^lens\.TestCaptureStack\.func\d+$`, frames[0].Function)
	})
}

func TestSplitFuncName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		full  string
		owner string
		name  string
	}{
		{"", "", ""},
		{"main.main", "main", "main"},
		{"github.com/a/b/pkg.Func", "pkg", "Func"},
		{"github.com/a/b/pkg.(*T).Method", "pkg.(*T)", "Method"},
		{"github.com/a/b/pkg.(*T).Method.func1", "pkg.(*T)", "Method.func1"},
		{"github.com/a/b/pkg.T.Method", "pkg.T", "Method"},
		{"github.com/a/b/pkg.Func.func2", "pkg", "Func.func2"},
		{"github.com/a/b/pkg.init.0", "pkg", "init.0"},
		{"runtime.goexit", "runtime", "goexit"},
		{"nodot", "", "nodot"},
	}

	for _, tt := range tests {
		t.Run(tt.full, func(t *testing.T) {
			owner, name := splitFuncName(tt.full)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.name, name)
		})
	}
}
