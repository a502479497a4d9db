package lens

import (
	"runtime"
	"strings"
)

const (
	maxStackFrames = 64
	unknownFrame   = "unknown"
	// goCallSeparator joins an owning type and the function name, as printed by the Go runtime.
	goCallSeparator = "."
)

// StackFrame represents one normalized frame in a call stack.
type StackFrame struct {
	// File is the source file path, "unknown" when absent.
	File string `json:"file" msgpack:"file"`
	// Line is the line number, 0 when absent.
	Line int `json:"line" msgpack:"line"`
	// Function combines the owning type, the call separator, and the function name.
	Function string `json:"function" msgpack:"function"`
	// ArgCount is the number of call arguments known for the frame.
	ArgCount int `json:"argCount" msgpack:"argCount"`
}

// RawFrame is an un-normalized frame, any field may be empty.
type RawFrame struct {
	File     string
	Line     int
	Type     string // owning type or package
	Call     string // separator between Type and Function
	Function string
	Args     []any
}

// NormalizeStack converts raw frames into StackFrame values, preserving order.
func NormalizeStack(raw []RawFrame) []StackFrame {
	frames := make([]StackFrame, len(raw))
	for i, rf := range raw {
		frames[i] = normalizeFrame(rf)
	}
	return frames
}

func normalizeFrame(rf RawFrame) StackFrame {
	sf := StackFrame{
		File:     rf.File,
		Line:     max(rf.Line, 0),
		Function: rf.Function,
		ArgCount: len(rf.Args),
	}
	if sf.File == "" {
		sf.File = unknownFrame
	}
	if sf.Function == "" {
		sf.Function = unknownFrame
	} else if rf.Type != "" {
		call := rf.Call
		if call == "" {
			call = goCallSeparator
		}
		sf.Function = rf.Type + call + rf.Function
	}
	return sf
}

// CaptureStack returns the stack of the calling goroutine, innermost first, excluding the
// CaptureStack call itself.
func CaptureStack() []StackFrame {
	return captureTrace(captureRawFrames(2)) // skip runtime.Callers
}

// CaptureStackSkip works like CaptureStack, additionally removing skip caller frames.
func CaptureStackSkip(skip int) []StackFrame {
	return captureTrace(captureRawFrames(2 + max(skip, 0)))
}

// captureTrace removes the frame of the capture call, which is always the first raw frame.
func captureTrace(raw []RawFrame) []StackFrame {
	if len(raw) == 0 {
		return []StackFrame{}
	}
	return NormalizeStack(raw[1:])
}

func captureRawFrames(skip int) []RawFrame {
	pcs := make([]uintptr, maxStackFrames)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}
	return RawFramesFromRuntime(runtime.CallersFrames(pcs[:n]))
}

// RawFramesFromRuntime converts runtime frames, splitting Go function names into owning type and name.
func RawFramesFromRuntime(frames *runtime.Frames) []RawFrame {
	var raw []RawFrame
	for {
		f, more := frames.Next()
		owner, name := splitFuncName(f.Function)
		raw = append(raw, RawFrame{
			File:     f.File,
			Line:     f.Line,
			Type:     owner,
			Call:     goCallSeparator,
			Function: name,
		})
		if !more {
			break
		}
	}
	return raw
}

// splitFuncName splits "github.com/a/pkg.(*T).M.func1" into "pkg.(*T)" and "M.func1".
// Package level functions are owned by their package name.
func splitFuncName(full string) (string, string) {
	if full == "" {
		return "", ""
	}
	short := full
	if idx := strings.LastIndex(full, "/"); idx >= 0 {
		short = full[idx+1:] // only the package base name is kept
	}
	pkg, rest, ok := strings.Cut(short, ".")
	if !ok {
		return "", full
	}
	if strings.HasPrefix(rest, "(") { // method with explicit receiver, (*T) or (T)
		if end := strings.Index(rest, ")."); end > 0 {
			return pkg + "." + rest[:end+1], rest[end+2:]
		}
	} else if typeName, method, ok := strings.Cut(rest, "."); ok && isValueReceiver(typeName, method) {
		return pkg + "." + typeName, method
	}
	return pkg, rest
}

// isValueReceiver distinguishes "T.M" value methods from "F.func1" closures and "init.0" functions.
func isValueReceiver(typeName, method string) bool {
	if typeName == "" || method == "" || typeName == "init" || strings.HasPrefix(method, "func") {
		return false
	}
	c := method[0]
	return !(c >= '0' && c <= '9')
}
