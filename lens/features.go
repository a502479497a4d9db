package lens

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-analyze/bulk"
)

// Level is the severity of a log event.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LogBody is the data of an EventLog envelope.
type LogBody struct {
	Level   Level     `json:"level" msgpack:"level"`
	Message string    `json:"message" msgpack:"message"`
	Context *TreeNode `json:"context,omitempty" msgpack:"context,omitempty"`
}

// DumpBody is the data of an EventDump envelope.
type DumpBody struct {
	Values []*TreeNode `json:"values" msgpack:"values"`
	Caller StackFrame  `json:"caller" msgpack:"caller"`
}

// SQLBody is the data of an EventSQL envelope.
type SQLBody struct {
	Query        string      `json:"query" msgpack:"query"`
	Bindings     []*TreeNode `json:"bindings" msgpack:"bindings"`
	Interpolated string      `json:"interpolated" msgpack:"interpolated"`
	TimeMs       float64     `json:"time_ms" msgpack:"time_ms"`
}

// ExceptionBody is the data of an EventException envelope.
type ExceptionBody struct {
	Class   string       `json:"class" msgpack:"class"`
	Message string       `json:"message" msgpack:"message"`
	Chain   []string     `json:"chain,omitempty" msgpack:"chain,omitempty"`
	Trace   []StackFrame `json:"trace" msgpack:"trace"`
}

// TimeBody is the data of an EventTime envelope.
type TimeBody struct {
	Label       string  `json:"label" msgpack:"label"`
	TimeMs      float64 `json:"time_ms" msgpack:"time_ms"`
	Memory      string  `json:"memory" msgpack:"memory"`
	MemoryDelta string  `json:"memory_delta" msgpack:"memory_delta"`
}

// TableBody is the data of an EventTable envelope.
type TableBody struct {
	Label   string        `json:"label" msgpack:"label"`
	Columns []string      `json:"columns" msgpack:"columns"`
	Rows    [][]*TreeNode `json:"rows" msgpack:"rows"`
}

// Log sends a message with optional context values. A single context value is inspected
// directly, several are inspected as a list.
func (c *Client) Log(level Level, message string, context ...any) error {
	if !c.Enabled() {
		return nil
	}
	body := LogBody{Level: level, Message: message}
	switch len(context) {
	case 0:
	case 1:
		body.Context = c.inspector.Inspect(context[0])
	default:
		body.Context = c.inspector.Inspect(context)
	}
	return c.send(EventLog, body)
}

// Debug sends a debug level log.
func (c *Client) Debug(message string, context ...any) error {
	return c.Log(LevelDebug, message, context...)
}

// Info sends an info level log.
func (c *Client) Info(message string, context ...any) error {
	return c.Log(LevelInfo, message, context...)
}

// Warning sends a warning level log.
func (c *Client) Warning(message string, context ...any) error {
	return c.Log(LevelWarning, message, context...)
}

// Error sends an error level log.
func (c *Client) Error(message string, context ...any) error {
	return c.Log(LevelError, message, context...)
}

// Dump inspects each value and sends them along with the calling location.
func (c *Client) Dump(values ...any) error {
	if !c.Enabled() {
		return nil
	}
	body := DumpBody{Values: make([]*TreeNode, len(values))}
	for i, v := range values {
		body.Values[i] = c.inspector.Inspect(v)
	}
	if frames := CaptureStackSkip(1); len(frames) > 0 {
		body.Caller = frames[0]
	} else {
		body.Caller = normalizeFrame(RawFrame{})
	}
	return c.send(EventDump, body)
}

// SQL sends a query with its positional bindings and execution duration.
func (c *Client) SQL(query string, bindings []any, duration time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	body := SQLBody{
		Query:        query,
		Bindings:     make([]*TreeNode, len(bindings)),
		Interpolated: InterpolateSQL(query, bindings),
		TimeMs:       durationMs(duration),
	}
	for i, b := range bindings {
		body.Bindings[i] = c.inspector.Inspect(b)
	}
	return c.send(EventSQL, body)
}

// InterpolateSQL substitutes each '?' placeholder outside of quoted literals with the SQL
// literal of the matching binding. Placeholders without a binding are left in place.
func InterpolateSQL(query string, bindings []any) string {
	var sb strings.Builder
	sb.Grow(len(query))
	var quote rune
	next := 0
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '?' && next < len(bindings):
			sb.WriteString(sqlLiteral(bindings[next]))
			next++
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func sqlLiteral(value any) string {
	v, ok := indirect(reflect.ValueOf(value), maxIndirections)
	if !ok || isNilValue(v) {
		return "NULL"
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if data, ok := byteContent(v); ok {
			return quoteSQL(bytesDisplay(data))
		}
	case reflect.Bool:
		if v.Bool() {
			return "1"
		}
		return "0"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, v.Type().Bits())
	case reflect.String:
		return quoteSQL(v.String())
	}
	if isTimeType(v.Type()) {
		return quoteSQL(formatTime(v))
	} else if s, ok := v.Interface().(fmt.Stringer); ok {
		return quoteSQL(s.String())
	}
	return quoteSQL(fmt.Sprintf("%v", v.Interface()))
}

func quoteSQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Exception sends err with its wrapped chain and the current stack. A nil error is ignored.
func (c *Client) Exception(err error) error {
	if err == nil || !c.Enabled() {
		return nil
	}
	return c.send(EventException, exceptionBody(err, fmt.Sprintf("%T", err), CaptureStackSkip(1)))
}

// RecoverPanic reports a panic as an exception and then re-panics with the same value. It must
// be deferred directly: defer client.RecoverPanic().
func (c *Client) RecoverPanic() {
	r := recover()
	if r == nil {
		return
	}
	if c.Enabled() {
		err, ok := r.(error)
		class := fmt.Sprintf("%T", r)
		if !ok {
			err = fmt.Errorf("panic: %v", r)
			class = "panic"
		}
		trace := bulk.SliceFilter(func(f StackFrame) bool {
			return !strings.HasPrefix(f.Function, "runtime.")
		}, CaptureStackSkip(1))
		if sendErr := c.send(EventException, exceptionBody(err, class, trace)); sendErr != nil {
			logSendFailure(EventException, sendErr)
		}
	}
	panic(r)
}

func exceptionBody(err error, class string, trace []StackFrame) ExceptionBody {
	return ExceptionBody{
		Class:   class,
		Message: err.Error(),
		Chain:   errorChain(err),
		Trace:   trace,
	}
}

// errorChain lists the messages of the errors wrapped by err, depth first.
func errorChain(err error) []string {
	var chain []string
	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		if depth > maxIndirections {
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				if inner != nil {
					chain = append(chain, inner.Error())
					walk(inner, depth+1)
				}
			}
		default:
			if inner := errors.Unwrap(e); inner != nil {
				chain = append(chain, inner.Error())
				walk(inner, depth+1)
			}
		}
	}
	walk(err, 0)
	return chain
}

// Time starts a timer for label. The returned function stops it and sends the elapsed time and
// memory change, typically: defer client.Time("load")()
func (c *Client) Time(label string) func() error {
	start := time.Now()
	startMem := currentMemory()
	return func() error {
		elapsed := time.Since(start)
		if !c.Enabled() {
			return nil
		}
		mem := currentMemory()
		return c.send(EventTime, TimeBody{
			Label:       label,
			TimeMs:      durationMs(elapsed),
			Memory:      HumanizeBytes(mem),
			MemoryDelta: humanizeDelta(mem - startMem),
		})
	}
}

// Measure times fn under label.
func (c *Client) Measure(label string, fn func()) error {
	stop := c.Time(label)
	fn()
	return stop()
}

func humanizeDelta(delta int64) string {
	if delta < 0 {
		return "-" + HumanizeBytes(-delta)
	}
	return "+" + HumanizeBytes(delta)
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Table sends rows as a table. Rows is usually a slice of structs, maps or Pairs; the columns are
// the union of the row keys in first seen order. Anything that is not a list is sent as one row.
func (c *Client) Table(label string, rows any) error {
	if !c.Enabled() {
		return nil
	}
	return c.send(EventTable, c.tableBody(label, rows))
}

func (c *Client) tableBody(label string, rows any) TableBody {
	const valueColumn = "value"
	rowValues := tableRows(rows)
	body := TableBody{Label: label, Columns: []string{}, Rows: make([][]*TreeNode, 0, len(rowValues))}
	columnIndex := make(map[string]int)
	rowCells := make([]map[string]*TreeNode, len(rowValues))
	for i, row := range rowValues {
		node := c.inspector.InspectDepth(row, 1) // cells are the second level
		cells := make(map[string]*TreeNode)
		var keys []string
		if node.Kind == KindArray || node.Kind == KindObject {
			for _, child := range node.Children {
				cells[child.Key] = child.Value
				keys = append(keys, child.Key)
			}
		} else {
			cells[valueColumn] = node
			keys = []string{valueColumn}
		}
		for _, key := range keys {
			if _, ok := columnIndex[key]; !ok {
				columnIndex[key] = len(body.Columns)
				body.Columns = append(body.Columns, key)
			}
		}
		rowCells[i] = cells
	}

	for _, cells := range rowCells {
		row := make([]*TreeNode, len(body.Columns))
		for key, idx := range columnIndex {
			if cell, ok := cells[key]; ok {
				row[idx] = cell
			} else {
				row[idx] = c.inspector.Inspect(nil)
			}
		}
		body.Rows = append(body.Rows, row)
	}
	return body
}

// tableRows splits rows into its elements when it is a list.
func tableRows(rows any) []any {
	if rows == nil {
		return nil
	} else if pairs, ok := rows.(Pairs); ok {
		return []any{pairs}
	}
	v, ok := indirect(reflect.ValueOf(rows), maxIndirections)
	if !ok || isNilValue(v) || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return []any{rows}
	} else if _, isBytes := byteContent(v); isBytes {
		return []any{rows}
	}
	values := make([]any, v.Len())
	for i := range values {
		values[i] = v.Index(i).Interface()
	}
	return values
}

func logSendFailure(eventType string, err error) {
	log.Printf("%sFailed to send %s event: %v", ErrorLogPrefix, eventType, err)
}
