package lens

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultMaxDepth is the number of levels below the root that are expanded into children.
	DefaultMaxDepth = 10
	// MaxDepthReached is the display value of a node substituted once the depth limit is exceeded.
	MaxDepthReached = "[Max depth reached]"

	// maxIndirections bounds pointer / interface unwrapping when no depth limit applies.
	maxIndirections = 64
)

// Kind tags the shape of an inspected value for the renderer.
type Kind string

const (
	KindNull    Kind = "null"
	KindBoolean Kind = "boolean"
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindString  Kind = "string"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindError   Kind = "error"
	KindUnknown Kind = "unknown"
)

// Visibility describes how a struct member is accessible.
type Visibility string

const (
	// VisibilityPublic marks exported fields.
	VisibilityPublic Visibility = "public"
	// VisibilityProtected marks embedded fields, whose members are promoted to the outer type.
	VisibilityProtected Visibility = "protected"
	// VisibilityPrivate marks unexported fields.
	VisibilityPrivate Visibility = "private"
)

// TreeNode is one node of the depth-bounded representation of an inspected value.
// Field names are the contract with the remote renderer.
type TreeNode struct {
	Kind             Kind        `json:"kind" msgpack:"kind"`
	DisplayValue     string      `json:"displayValue" msgpack:"displayValue"`
	IsExpandable     bool        `json:"isExpandable" msgpack:"isExpandable"`
	FullValue        string      `json:"fullValue,omitempty" msgpack:"fullValue,omitempty"`
	Children         []ChildNode `json:"children,omitempty" msgpack:"children,omitempty"`
	MemberVisibility Visibility  `json:"memberVisibility,omitempty" msgpack:"memberVisibility,omitempty"`
	ElementCount     *int        `json:"elementCount,omitempty" msgpack:"elementCount,omitempty"`
	TypeName         string      `json:"typeName,omitempty" msgpack:"typeName,omitempty"`
}

// ChildNode pairs a child node with its key in the parent.
type ChildNode struct {
	Key   string    `json:"key" msgpack:"key"`
	Value *TreeNode `json:"value" msgpack:"value"`
}

// Child returns the child node with the given key, or nil if none exists.
func (n *TreeNode) Child(key string) *TreeNode {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Key == key {
			return c.Value
		}
	}
	return nil
}

// Text renders the tree as indented "key: value" lines.
func (n *TreeNode) Text() string {
	var sb strings.Builder
	var walk func(prefix, key string, node *TreeNode)
	walk = func(prefix, key string, node *TreeNode) {
		sb.WriteString(prefix)
		if key != "" {
			sb.WriteString(key)
			if node.MemberVisibility != "" {
				sb.WriteString(" (" + string(node.MemberVisibility) + ")")
			}
			sb.WriteString(": ")
		}
		if node.FullValue != "" {
			sb.WriteString(node.FullValue)
		} else {
			sb.WriteString(node.DisplayValue)
		}
		sb.WriteByte('\n')
		for _, c := range node.Children {
			walk(prefix+"  ", c.Key, c.Value)
		}
	}
	if n != nil {
		walk("", "", n)
	}
	return sb.String()
}

func (n *TreeNode) setChildren(children []ChildNode) {
	count := len(children)
	n.ElementCount = &count
	n.IsExpandable = count > 0
	if count > 0 {
		n.Children = children
	}
}

// Options configures an Inspector. Zero values select the defaults.
type Options struct {
	// MaxDepth is the number of levels below the root that are expanded.
	MaxDepth int
	// MaxStringLength is the number of characters displayed before a string is truncated.
	MaxStringLength int
	// LayoutCacheSize is the number of struct layouts cached, zero disables the cache.
	LayoutCacheSize int
}

// Inspector converts arbitrary values into TreeNode trees.
type Inspector struct {
	maxDepth        int
	maxStringLength int
	members         *memberLister
}

var defaultInspector = NewInspector(Options{})

// NewInspector creates an Inspector for the given options.
func NewInspector(opts Options) *Inspector {
	i := &Inspector{
		maxDepth:        opts.MaxDepth,
		maxStringLength: opts.MaxStringLength,
		members:         newMemberLister(opts.LayoutCacheSize),
	}
	if i.maxDepth <= 0 {
		i.maxDepth = DefaultMaxDepth
	}
	if i.maxStringLength <= 0 {
		i.maxStringLength = DefaultMaxStringLength
	}
	return i
}

// Close releases the layout cache, if one was configured.
func (i *Inspector) Close() {
	i.members.close()
}

// Inspect converts value into a tree using the default limits.
func Inspect(value any) *TreeNode {
	return defaultInspector.Inspect(value)
}

// Inspect converts value into a tree rooted at depth zero.
func (i *Inspector) Inspect(value any) *TreeNode {
	return i.InspectDepth(value, 0)
}

// InspectDepth converts value into a tree as if it was found depth levels below a root.
// It never panics, any failure is reported as an error node.
func (i *Inspector) InspectDepth(value any, depth int) (node *TreeNode) {
	defer func() {
		if r := recover(); r != nil {
			node = i.errorNode(fmt.Sprintf("inspection failed: %v", r))
		}
	}()
	return i.inspectValue(reflect.ValueOf(value), depth)
}

func (i *Inspector) inspectValue(v reflect.Value, depth int) *TreeNode {
	if depth > i.maxDepth {
		return i.maxDepthNode(v)
	}
	if mp, ok := asMemberProvider(v); ok {
		return i.providerNode(v, mp, depth)
	}
	v, ok := indirect(v, i.maxDepth)
	if !ok {
		return i.maxDepthNode(v)
	} else if isNilValue(v) {
		return &TreeNode{Kind: KindNull, DisplayValue: "null"}
	} else if mp, ok := asMemberProvider(v); ok {
		return i.providerNode(v, mp, depth)
	}

	switch v.Kind() {
	case reflect.Bool:
		return &TreeNode{Kind: KindBoolean, DisplayValue: strconv.FormatBool(v.Bool())}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return &TreeNode{Kind: KindInteger, DisplayValue: formatReflectValue(v, i.maxStringLength)}
	case reflect.Float32, reflect.Float64:
		return &TreeNode{Kind: KindFloat, DisplayValue: formatReflectValue(v, i.maxStringLength)}
	case reflect.String:
		return i.stringNode(v.String())
	case reflect.Slice, reflect.Array:
		if data, isBytes := byteContent(v); isBytes {
			return i.stringNode(bytesDisplay(data))
		} else if v.Type() == pairsType {
			return i.pairsNode(v.Interface().(Pairs), depth)
		}
		return i.sliceNode(v, depth)
	case reflect.Map:
		return i.mapNode(v, depth)
	case reflect.Struct:
		if isTimeType(v.Type()) {
			return &TreeNode{Kind: KindObject, DisplayValue: formatTime(v), TypeName: v.Type().String()}
		}
		return i.structNode(v, depth)
	default: // complex, func, chan, unsafe pointer
		return &TreeNode{Kind: KindUnknown, DisplayValue: formatReflectValue(v, i.maxStringLength)}
	}
}

func (i *Inspector) stringNode(s string) *TreeNode {
	display, truncated := truncateString(s, i.maxStringLength)
	n := &TreeNode{Kind: KindString, DisplayValue: display}
	if truncated {
		n.FullValue = s
		n.IsExpandable = true
	}
	return n
}

func (i *Inspector) errorNode(msg string) *TreeNode {
	n := i.stringNode(msg)
	n.Kind = KindError
	return n
}

// maxDepthNode is the terminal leaf used once recursion passes the depth limit.
func (i *Inspector) maxDepthNode(v reflect.Value) *TreeNode {
	return &TreeNode{Kind: classifyKind(v, i.maxDepth), DisplayValue: MaxDepthReached}
}

func (i *Inspector) sliceNode(v reflect.Value, depth int) *TreeNode {
	length := v.Len()
	n := &TreeNode{Kind: KindArray, DisplayValue: formatContainer(length)}
	children := make([]ChildNode, length)
	for idx := 0; idx < length; idx++ {
		children[idx] = ChildNode{Key: strconv.Itoa(idx), Value: i.inspectValue(v.Index(idx), depth+1)}
	}
	n.setChildren(children)
	return n
}

func (i *Inspector) pairsNode(pairs Pairs, depth int) *TreeNode {
	n := &TreeNode{Kind: KindArray, DisplayValue: formatContainer(len(pairs))}
	children := make([]ChildNode, len(pairs))
	for idx, p := range pairs {
		children[idx] = ChildNode{Key: p.Key, Value: i.inspectValue(reflect.ValueOf(p.Value), depth+1)}
	}
	n.setChildren(children)
	return n
}

func (i *Inspector) mapNode(v reflect.Value, depth int) *TreeNode {
	keys := v.MapKeys()
	sort.Slice(keys, func(a, b int) bool { return compareReflectValue(keys[a], keys[b]) < 0 })
	n := &TreeNode{Kind: KindArray, DisplayValue: formatContainer(len(keys))}
	children := make([]ChildNode, len(keys))
	for idx, k := range keys {
		children[idx] = ChildNode{Key: mapKeyString(k), Value: i.inspectValue(v.MapIndex(k), depth+1)}
	}
	n.setChildren(children)
	return n
}

func (i *Inspector) structNode(v reflect.Value, depth int) *TreeNode {
	members := i.members.structMembers(v)
	return i.objectNode(v.Type(), members, depth)
}

func (i *Inspector) providerNode(v reflect.Value, mp MemberProvider, depth int) *TreeNode {
	members, err := providerMembers(mp)
	if err != nil {
		return i.errorNode(err.Error())
	}
	t := v.Type()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return i.objectNode(t, members, depth)
}

func (i *Inspector) objectNode(t reflect.Type, members []member, depth int) *TreeNode {
	n := &TreeNode{
		Kind:         KindObject,
		DisplayValue: formatObject(t, len(members)),
		TypeName:     t.String(),
	}
	children := make([]ChildNode, len(members))
	for idx, m := range members {
		child := i.inspectMember(m, depth+1)
		child.MemberVisibility = m.visibility
		children[idx] = ChildNode{Key: m.name, Value: child}
	}
	n.setChildren(children)
	return n
}

// inspectMember reads and inspects a single member, converting read failures to an error node.
func (i *Inspector) inspectMember(m member, depth int) (node *TreeNode) {
	defer func() {
		if r := recover(); r != nil {
			node = i.errorNode(fmt.Sprintf("%v", r))
		}
	}()
	val, err := m.read()
	if err != nil {
		return i.errorNode(err.Error())
	}
	return i.inspectValue(val, depth)
}

// indirect unwraps interfaces and pointers, stopping at nil. The bool is false when more than
// limit indirections were followed, which only happens for self-referencing pointers.
func indirect(v reflect.Value, limit int) (reflect.Value, bool) {
	for hops := 0; v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer); hops++ {
		if v.IsNil() {
			return v, true
		} else if hops >= limit {
			return v, false
		}
		v = v.Elem()
	}
	return v, true
}

func isNilValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return v.IsNil()
	default:
		return false
	}
}

// classifyKind reports the kind a value would be given, without inspecting its content.
func classifyKind(v reflect.Value, limit int) Kind {
	if _, ok := asMemberProvider(v); ok {
		return KindObject
	}
	v, ok := indirect(v, limit)
	if !ok {
		return KindUnknown
	} else if isNilValue(v) {
		return KindNull
	}
	switch v.Kind() {
	case reflect.Bool:
		return KindBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return KindInteger
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.String:
		return KindString
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return KindString
		}
		return KindArray
	case reflect.Map:
		return KindArray
	case reflect.Struct:
		return KindObject
	default:
		return KindUnknown
	}
}

func mapKeyString(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	} else if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return keyText(k)
}

// keyText renders a comparable value without Interface, so read-only values from
// unexported fields can be formatted.
func keyText(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Invalid:
		return "<nil>"
	case reflect.String:
		return v.String()
	case reflect.Interface:
		if v.IsNil() {
			return "<nil>"
		}
		return keyText(v.Elem())
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan:
		return "0x" + strconv.FormatUint(uint64(v.Pointer()), 16)
	case reflect.Struct:
		parts := make([]string, v.NumField())
		for idx := range parts {
			parts[idx] = keyText(v.Field(idx))
		}
		return "{" + strings.Join(parts, " ") + "}"
	case reflect.Array:
		parts := make([]string, v.Len())
		for idx := range parts {
			parts[idx] = keyText(v.Index(idx))
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return formatReflectValue(v, math.MaxInt)
	}
}

// compareReflectValue compares two map keys for sorting.
// Keys in a map are guaranteed to be the same type, so we switch on kind once.
func compareReflectValue(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.String:
		return strings.Compare(a.String(), b.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return compareOrdered(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return compareOrdered(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return compareOrdered(a.Float(), b.Float())
	case reflect.Complex64, reflect.Complex128:
		if c := compareOrdered(real(a.Complex()), real(b.Complex())); c != 0 {
			return c
		}
		return compareOrdered(imag(a.Complex()), imag(b.Complex()))
	case reflect.Bool:
		// false < true
		if a.Bool() == b.Bool() {
			return 0
		} else if b.Bool() {
			return -1
		}
		return 1
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan:
		return compareOrdered(a.Pointer(), b.Pointer())
	case reflect.Array:
		for idx := 0; idx < a.Len(); idx++ {
			if c := compareReflectValue(a.Index(idx), b.Index(idx)); c != 0 {
				return c
			}
		}
		return 0
	case reflect.Struct:
		for idx := 0; idx < a.NumField(); idx++ {
			if c := compareReflectValue(a.Field(idx), b.Field(idx)); c != 0 {
				return c
			}
		}
		return 0
	case reflect.Interface:
		if a.IsNil() && b.IsNil() {
			return 0
		} else if a.IsNil() {
			return -1
		} else if b.IsNil() {
			return 1
		} else if a.Elem().Type() != b.Elem().Type() {
			// different underlying types: compare by type name for consistent ordering
			return strings.Compare(a.Elem().Type().String(), b.Elem().Type().String())
		}
		return compareReflectValue(a.Elem(), b.Elem())
	default:
		return strings.Compare(keyText(a), keyText(b))
	}
}

func compareOrdered[T int64 | uint64 | float64 | uintptr](a, b T) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
