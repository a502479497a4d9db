package lens

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/mtraver/base91"
)

const (
	// DefaultMaxStringLength is the number of characters kept in a display value before truncation.
	DefaultMaxStringLength = 100
	// DateTimeLayout is the layout used to display time.Time values.
	DateTimeLayout = "2006-01-02 15:04:05"
	// BinaryDisplayPrefix marks byte slices that are not valid UTF-8 and were base91 encoded for display.
	BinaryDisplayPrefix = "base91:"

	truncationSuffix = "..."
)

var timeType = reflect.TypeOf(time.Time{})

// FormatScalar renders a single value to a short human string using the default truncation length.
func FormatScalar(value any) string {
	return formatReflectValue(reflect.ValueOf(value), DefaultMaxStringLength)
}

// FormatScalar renders a single value to a short human string using the inspector truncation length.
func (i *Inspector) FormatScalar(value any) string {
	return formatReflectValue(reflect.ValueOf(value), i.maxStringLength)
}

// truncateString cuts s to limit characters and appends an ellipsis, reporting if a cut was made.
func truncateString(s string, limit int) (string, bool) {
	if len(s) <= limit || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	var count int
	for idx := range s {
		if count == limit {
			return s[:idx] + truncationSuffix, true
		}
		count++
	}
	return s, false // unreachable, rune count exceeded limit
}

func formatReflectValue(v reflect.Value, maxLen int) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("<unreadable: %v>", r)
		}
	}()

	v, ok := indirect(v, maxIndirections)
	if !ok {
		return "<" + v.Type().String() + ">"
	} else if isNilValue(v) {
		return "null"
	}

	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.String:
		s, _ := truncateString(v.String(), maxLen)
		return s
	case reflect.Slice, reflect.Array:
		if data, isBytes := byteContent(v); isBytes {
			s, _ := truncateString(bytesDisplay(data), maxLen)
			return s
		}
		return formatContainer(v.Len())
	case reflect.Map:
		return formatContainer(v.Len())
	case reflect.Struct:
		if isTimeType(v.Type()) {
			return formatTime(v)
		}
		if mp, ok := asMemberProvider(v); ok {
			return formatObject(v.Type(), len(mp.LensMembers()))
		}
		return formatObject(v.Type(), v.NumField())
	case reflect.Complex64, reflect.Complex128:
		return strconv.FormatComplex(v.Complex(), 'g', -1, 128)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "<" + v.Type().String() + ">"
	default:
		s, _ := truncateString(fmt.Sprint(v.Interface()), maxLen)
		return s
	}
}

func formatContainer(count int) string {
	return string(KindArray) + "(" + strconv.Itoa(count) + ")"
}

func formatObject(t reflect.Type, memberCount int) string {
	return t.String() + "(" + strconv.Itoa(memberCount) + " properties)"
}

// isTimeType matches time.Time and defined types with time.Time as underlying type.
func isTimeType(t reflect.Type) bool {
	return t == timeType || (t.Kind() == reflect.Struct && t.ConvertibleTo(timeType))
}

func formatTime(v reflect.Value) string {
	if v.Type() != timeType {
		v = v.Convert(timeType)
	}
	if t, ok := v.Interface().(time.Time); ok {
		return t.Format(DateTimeLayout)
	}
	return fmt.Sprint(v.Interface())
}

// byteContent returns the raw bytes for []byte and [N]byte values.
func byteContent(v reflect.Value) ([]byte, bool) {
	if v.Type().Elem().Kind() != reflect.Uint8 {
		return nil, false
	} else if v.Kind() == reflect.Slice {
		return v.Bytes(), true
	}
	data := make([]byte, v.Len())
	for idx := range data {
		data[idx] = byte(v.Index(idx).Uint())
	}
	return data, true
}

// bytesDisplay renders bytes as text when valid UTF-8, otherwise as prefixed base91.
func bytesDisplay(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return BinaryDisplayPrefix + base91.StdEncoding.EncodeToString(data)
}
