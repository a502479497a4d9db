package lens

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"unsafe"

	"github.com/dgraph-io/ristretto/v2"
)

// Member is a single named value reported by a MemberProvider.
type Member struct {
	// Name is the member identifier shown as the child key.
	Name string
	// Visibility tags the member for the renderer, defaults to public when empty.
	Visibility Visibility
	// Read returns the current member value. A returned error or panic is reported as an error node.
	Read func() (any, error)
}

// MemberProvider can be implemented by types that report their own members instead of having
// their struct fields enumerated through reflection.
type MemberProvider interface {
	LensMembers() []Member
}

var errNilMemberRead = errors.New("member has no reader")

// member is the internal accessor form shared by reflected fields and provided members.
type member struct {
	name       string
	visibility Visibility
	read       func() (reflect.Value, error)
}

var memberProviderType = reflect.TypeOf((*MemberProvider)(nil)).Elem()

// asMemberProvider returns the MemberProvider implemented by v or its address.
func asMemberProvider(v reflect.Value) (MemberProvider, bool) {
	if !v.IsValid() || isNilValue(v) || !v.CanInterface() {
		return nil, false
	} else if v.Type().Implements(memberProviderType) {
		return v.Interface().(MemberProvider), true
	} else if v.CanAddr() && v.Addr().Type().Implements(memberProviderType) {
		return v.Addr().Interface().(MemberProvider), true
	}
	return nil, false
}

// providerMembers converts provided members into accessors, recovering from a panicking provider.
func providerMembers(mp MemberProvider) (members []member, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("list members failed: %v", r)
		}
	}()
	provided := mp.LensMembers()
	members = make([]member, len(provided))
	for idx, m := range provided {
		visibility := m.Visibility
		if visibility == "" {
			visibility = VisibilityPublic
		}
		read := m.Read
		members[idx] = member{
			name:       m.Name,
			visibility: visibility,
			read: func() (reflect.Value, error) {
				if read == nil {
					return reflect.Value{}, errNilMemberRead
				}
				val, err := read()
				if err != nil {
					return reflect.Value{}, err
				}
				return reflect.ValueOf(val), nil
			},
		}
	}
	return members, nil
}

// fieldLayout describes one struct field, computed once per type.
type fieldLayout struct {
	index      int
	name       string
	visibility Visibility
}

// memberLister enumerates struct fields, optionally caching the per-type layout.
type memberLister struct {
	layouts *ristretto.Cache[uint64, []fieldLayout]
}

func newMemberLister(cacheSize int) *memberLister {
	l := &memberLister{}
	if cacheSize <= 0 {
		return l
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []fieldLayout]{
		NumCounters: int64(cacheSize) * 10,
		MaxCost:     int64(cacheSize),
		BufferItems: 64,
	})
	if err != nil {
		log.Printf("%sLayout cache disabled: %v", ErrorLogPrefix, err)
		return l
	}
	l.layouts = cache
	return l
}

func (l *memberLister) close() {
	if l.layouts != nil {
		l.layouts.Close()
	}
}

func (l *memberLister) layout(t reflect.Type) []fieldLayout {
	var key uint64
	if l.layouts != nil {
		key = typeKey(t)
		if cached, ok := l.layouts.Get(key); ok {
			return cached
		}
	}
	layout := make([]fieldLayout, t.NumField())
	for idx := range layout {
		sf := t.Field(idx)
		visibility := VisibilityPrivate
		if sf.Anonymous {
			visibility = VisibilityProtected
		} else if sf.IsExported() {
			visibility = VisibilityPublic
		}
		layout[idx] = fieldLayout{index: idx, name: sf.Name, visibility: visibility}
	}
	if l.layouts != nil {
		l.layouts.Set(key, layout, 1)
	}
	return layout
}

// structMembers lists all fields of the struct v regardless of export status.
func (l *memberLister) structMembers(v reflect.Value) []member {
	// Make addressable if needed for unexported field access
	if !v.CanAddr() {
		tmp := reflect.New(v.Type()).Elem()
		tmp.Set(v)
		v = tmp
	}
	layout := l.layout(v.Type())
	members := make([]member, len(layout))
	for idx, f := range layout {
		fieldIndex := f.index
		members[idx] = member{
			name:       f.name,
			visibility: f.visibility,
			read: func() (reflect.Value, error) {
				fv := v.Field(fieldIndex)
				if !fv.CanInterface() {
					fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
				}
				return fv, nil
			},
		}
	}
	return members
}

// typeKey identifies a type by its runtime type descriptor address.
func typeKey(t reflect.Type) uint64 {
	return uint64(reflect.ValueOf(t).Pointer())
}
