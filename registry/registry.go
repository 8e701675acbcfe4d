// Package registry holds entity metadata for secrepo. Each entity type is
// registered once at startup; registration parses struct tags into a small
// descriptor (keyspace name, identifier field, field list, discriminator
// class name) that the converter, path codec and executor consume. After
// the registration phase the registry is effectively read-only.
//
// Field metadata comes from the `secret` struct tag:
//
//	type SSHKey struct {
//		ID      string `secret:"id,auto"`  // identifier, generated when empty
//		Login   string                     // stored as "login"
//		KeyData string `secret:"key_data"` // explicit document key
//		Scratch string `secret:"-"`        // not persisted
//	}
package registry

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Field describes one persisted struct field.
type Field struct {
	// Name is the document key the field is stored under.
	Name string
	// GoName is the struct field name.
	GoName string
	// Index is the struct field index.
	Index int
	// Type is the declared field type.
	Type reflect.Type
	// IsID marks the identifier field.
	IsID bool
}

// Descriptor is the registered metadata for one entity type.
type Descriptor struct {
	// GoType is the entity struct type (never a pointer).
	GoType reflect.Type
	// Keyspace is the path prefix all entities of the type live under.
	Keyspace string
	// Class is the discriminator value written to documents of this type.
	Class string
	// IDField is the single string-valued identifier field.
	IDField Field
	// AutoID marks identifiers that may be generated on first save.
	AutoID bool
	// Fields lists every persisted field, identifier included.
	Fields []Field

	byName   map[string]*Field // document key -> field
	byGoName map[string]*Field // struct field name -> field
}

// FieldByName resolves a field by document key.
func (d *Descriptor) FieldByName(name string) (*Field, bool) {
	f, ok := d.byName[name]
	return f, ok
}

// FieldByGoName resolves a field by struct field name, falling back to a
// case-insensitive match so parsed method-name fields like
// "SocialSecurityNumber" resolve without exact casing.
func (d *Descriptor) FieldByGoName(name string) (*Field, bool) {
	if f, ok := d.byGoName[name]; ok {
		return f, true
	}
	for goName, f := range d.byGoName {
		if strings.EqualFold(goName, name) {
			return f, true
		}
	}
	return nil, false
}

// ID reads the identifier value from an entity.
func (d *Descriptor) ID(entity any) string {
	v := reflect.ValueOf(entity)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v.Field(d.IDField.Index).String()
}

// SetID writes the identifier value into an entity. The entity must be
// addressable (a pointer to struct).
func (d *Descriptor) SetID(entity any, id string) error {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("expected pointer to struct, got %T", entity)
	}
	v.Elem().Field(d.IDField.Index).SetString(id)
	return nil
}

// Option configures a registration.
type Option func(*options)

type options struct {
	keyspace string
	class    string
	autoID   bool
	concrete bool
}

// WithKeyspace overrides the keyspace derived from the type name.
func WithKeyspace(name string) Option {
	return func(o *options) { o.keyspace = name }
}

// WithClass overrides the discriminator value derived from the type's
// package path and name.
func WithClass(name string) Option {
	return func(o *options) { o.class = name }
}

// WithAutoID marks the identifier as generated when empty on save, even
// without an "auto" tag option.
func WithAutoID() Option {
	return func(o *options) { o.autoID = true }
}

// Registry maps Go types to descriptors and discriminator class names
// back to Go types. Safe for concurrent reads; registration is expected
// to happen up front, before repositories start serving.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*Descriptor
	byClass map[string]reflect.Type
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*Descriptor),
		byClass: make(map[string]reflect.Type),
	}
}

// Register parses the entity type's tags and records its descriptor.
// Registering the same type twice returns the existing descriptor.
func (r *Registry) Register(entity any, opts ...Option) (*Descriptor, error) {
	t := reflect.TypeOf(entity)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct type, got %s", t.Kind())
	}

	r.mu.RLock()
	existing, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	desc, err := describe(t, o)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byType[t]; ok {
		return existing, nil
	}
	if prev, ok := r.byClass[desc.Class]; ok && prev != t {
		return nil, fmt.Errorf("class %q already registered for %s", desc.Class, prev)
	}
	r.byType[t] = desc
	r.byClass[desc.Class] = t
	return desc, nil
}

// RegisterConcrete records a type that only ever appears behind interface
// fields of other entities. It gets a discriminator class name but needs
// neither a keyspace nor an identifier of its own.
func (r *Registry) RegisterConcrete(value any, opts ...Option) error {
	opts = append(opts, func(o *options) { o.concrete = true })
	_, err := r.Register(value, opts...)
	return err
}

// Lookup returns the descriptor for an entity type.
func (r *Registry) Lookup(t reflect.Type) (*Descriptor, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byType[t]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("type %s is not registered", t)
}

// ByClass resolves a discriminator value to the registered concrete type.
func (r *Registry) ByClass(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byClass[name]
	return t, ok
}

// FieldsOf walks a struct type's exported fields and applies the `secret`
// tag rules, without requiring an identifier. The converter uses it for
// nested value types that are not registered as entities.
func FieldsOf(t reflect.Type) ([]Field, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct type, got %s", t.Kind())
	}
	var fields []Field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, isID, _, skip := parseTag(sf)
		if skip {
			continue
		}
		if name == "" {
			name = toSnakeCase(sf.Name)
		}
		fields = append(fields, Field{
			Name:   name,
			GoName: sf.Name,
			Index:  i,
			Type:   sf.Type,
			IsID:   isID,
		})
	}
	return fields, nil
}

// describe builds a descriptor from struct tags.
func describe(t reflect.Type, o options) (*Descriptor, error) {
	desc := &Descriptor{
		GoType:   t,
		Keyspace: o.keyspace,
		Class:    o.class,
		AutoID:   o.autoID,
		byName:   make(map[string]*Field),
		byGoName: make(map[string]*Field),
	}
	if desc.Keyspace == "" {
		desc.Keyspace = toSnakeCase(t.Name())
	}
	if desc.Class == "" {
		desc.Class = t.PkgPath() + "." + t.Name()
	}

	fields, err := FieldsOf(t)
	if err != nil {
		return nil, err
	}
	desc.Fields = fields

	idSeen := false
	for i := range desc.Fields {
		f := &desc.Fields[i]
		if !f.IsID {
			continue
		}
		if idSeen {
			return nil, fmt.Errorf("type %s declares more than one identifier field", t.Name())
		}
		if f.Type.Kind() != reflect.String {
			return nil, fmt.Errorf("identifier field %s.%s must be a string, got %s", t.Name(), f.GoName, f.Type)
		}
		idSeen = true
		if _, _, auto, _ := parseTag(t.Field(f.Index)); auto {
			desc.AutoID = true
		}
	}

	// Fall back to the conventional "ID" field when no tag marks one.
	if !idSeen {
		for i := range desc.Fields {
			f := &desc.Fields[i]
			if strings.EqualFold(f.GoName, "id") && f.Type.Kind() == reflect.String {
				f.IsID = true
				idSeen = true
				break
			}
		}
	}
	if !idSeen && !o.concrete {
		return nil, fmt.Errorf("type %s has no string identifier field (tag one with `secret:\"id\"`)", t.Name())
	}

	for i := range desc.Fields {
		f := &desc.Fields[i]
		if _, dup := desc.byName[f.Name]; dup {
			return nil, fmt.Errorf("type %s maps two fields to document key %q", t.Name(), f.Name)
		}
		desc.byName[f.Name] = f
		desc.byGoName[f.GoName] = f
		if f.IsID {
			desc.IDField = *f
		}
	}
	return desc, nil
}

// parseTag splits a `secret` tag into its name and options.
func parseTag(sf reflect.StructField) (name string, isID, auto, skip bool) {
	tag := sf.Tag.Get("secret")
	if tag == "" {
		return "", false, false, false
	}
	if tag == "-" {
		return "", false, false, true
	}
	parts := strings.Split(tag, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		switch part {
		case "id":
			isID = true
		case "auto":
			auto = true
		default:
			if i == 0 {
				name = part
			}
		}
	}
	return name, isID, auto, false
}

// toSnakeCase converts a CamelCase name to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	result.Grow(len(s) + 4)
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prevIsLower := s[i-1] >= 'a' && s[i-1] <= 'z'
			nextIsLower := i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z'
			if prevIsLower || nextIsLower {
				result.WriteByte('_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		result.WriteRune(r)
	}
	return result.String()
}
