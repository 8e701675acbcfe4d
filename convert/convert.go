// Package convert maps between typed entities and the semi-structured
// documents written to the store. Scalars map directly, nested structs
// become nested documents, slices and maps convert element-wise, and
// interface-typed fields carry the reserved discriminator so the concrete
// type can be reconstructed on the way back.
//
// Conversion is a full projection every time: writing an entity replaces
// the whole document at its path, never merges with what was there.
package convert

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/secrepo/secrepo/registry"
	"github.com/secrepo/secrepo/types"
)

// Error reports a document that could not be mapped to its target type.
type Error struct {
	Field string
	Type  reflect.Type
	Msg   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("converting field %q to %s: %s", e.Field, e.Type, e.Msg)
	}
	return fmt.Sprintf("converting to %s: %s", e.Type, e.Msg)
}

func (e *Error) Unwrap() error { return types.ErrConversion }

// Custom converts values of one Go type to and from their document
// representation, applied before the default mapping. FromDocument
// receives the raw document value and must return a value assignable to
// the declared field type.
type Custom struct {
	Type         reflect.Type
	ToDocument   func(v any) (any, error)
	FromDocument func(v any) (any, error)
}

// Option configures a Converter.
type Option func(*Converter)

// WithCustom appends custom converters, tried in order before the default
// mapping.
func WithCustom(cs ...Custom) Option {
	return func(c *Converter) { c.custom = append(c.custom, cs...) }
}

// Converter maps entities to documents and back using registered metadata.
type Converter struct {
	reg    *registry.Registry
	custom []Custom
}

// New creates a converter. time.Time values are handled out of the box,
// stored as RFC 3339 strings.
func New(reg *registry.Registry, opts ...Option) *Converter {
	c := &Converter{reg: reg}
	for _, opt := range opts {
		opt(c)
	}
	c.custom = append(c.custom, timeConverter())
	return c
}

func timeConverter() Custom {
	return Custom{
		Type: reflect.TypeOf(time.Time{}),
		ToDocument: func(v any) (any, error) {
			return v.(time.Time).Format(time.RFC3339Nano), nil
		},
		FromDocument: func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("expected RFC 3339 string, got %T", v)
			}
			return time.Parse(time.RFC3339Nano, s)
		},
	}
}

// ToDocument projects an entity into a document. The document root always
// carries the discriminator of the entity's registered class.
func (c *Converter) ToDocument(entity any) (types.Document, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, &Error{Type: reflect.TypeOf(entity), Msg: "nil entity"}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, &Error{Type: v.Type(), Msg: "expected struct entity"}
	}

	doc, err := c.structToDocument(v)
	if err != nil {
		return nil, err
	}
	doc[types.Discriminator] = c.classOf(v.Type())
	return doc, nil
}

func (c *Converter) classOf(t reflect.Type) string {
	if desc, err := c.reg.Lookup(t); err == nil {
		return desc.Class
	}
	return t.PkgPath() + "." + t.Name()
}

func (c *Converter) structToDocument(v reflect.Value) (types.Document, error) {
	fields, err := registry.FieldsOf(v.Type())
	if err != nil {
		return nil, &Error{Type: v.Type(), Msg: err.Error()}
	}
	doc := make(types.Document, len(fields)+1)
	for _, f := range fields {
		fv := v.Field(f.Index)
		out, ok, err := c.valueToDocument(f.Type, fv)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if ok {
			doc[f.Name] = out
		}
	}
	return doc, nil
}

// valueToDocument converts one value. The second return is false when the
// value should be omitted from the document (nil pointers and nil
// interfaces).
func (c *Converter) valueToDocument(declared reflect.Type, v reflect.Value) (any, bool, error) {
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false, nil
		}
	}

	for _, cc := range c.custom {
		if cc.ToDocument == nil {
			continue
		}
		cv := v
		for cv.Kind() == reflect.Ptr {
			cv = cv.Elem()
		}
		if cv.Type() == cc.Type {
			out, err := cc.ToDocument(cv.Interface())
			return out, true, err
		}
	}

	switch v.Kind() {
	case reflect.Ptr:
		return c.valueToDocument(declared.Elem(), v.Elem())

	case reflect.Interface:
		// Polymorphic field: nested document plus discriminator naming
		// the runtime type.
		elem := v.Elem()
		for elem.Kind() == reflect.Ptr {
			if elem.IsNil() {
				return nil, false, nil
			}
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct {
			return c.valueToDocument(elem.Type(), elem)
		}
		doc, err := c.structToDocument(elem)
		if err != nil {
			return nil, false, err
		}
		doc[types.Discriminator] = c.classOf(elem.Type())
		return doc, true, nil

	case reflect.Struct:
		doc, err := c.structToDocument(v)
		if err != nil {
			return nil, false, err
		}
		return doc, true, nil

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, false, nil
		}
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			ev, ok, err := c.valueToDocument(declared.Elem(), v.Index(i))
			if err != nil {
				return nil, false, fmt.Errorf("index %d: %w", i, err)
			}
			if !ok {
				ev = nil
			}
			out = append(out, ev)
		}
		return out, true, nil

	case reflect.Map:
		if v.IsNil() {
			return nil, false, nil
		}
		if declared.Key().Kind() != reflect.String {
			return nil, false, &Error{Type: declared, Msg: "map keys must be strings"}
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			ev, ok, err := c.valueToDocument(declared.Elem(), iter.Value())
			if err != nil {
				return nil, false, fmt.Errorf("key %q: %w", iter.Key().String(), err)
			}
			if !ok {
				ev = nil
			}
			out[iter.Key().String()] = ev
		}
		return out, true, nil

	case reflect.String:
		return v.String(), true, nil
	case reflect.Bool:
		return v.Bool(), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), true, nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), true, nil
	default:
		return nil, false, &Error{Type: v.Type(), Msg: fmt.Sprintf("unsupported kind %s", v.Kind())}
	}
}

// ToEntity reconstructs an entity from a document. When the document
// carries a discriminator that resolves to a registered type, that type is
// instantiated; otherwise target is used as declared. Missing document
// fields are left at their zero values, unknown document fields are
// ignored. The returned value is a pointer to the concrete struct.
func (c *Converter) ToEntity(doc types.Document, target reflect.Type) (any, error) {
	for target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	concrete := target
	if class, ok := doc.Class(); ok {
		if t, ok := c.reg.ByClass(class); ok {
			concrete = t
		}
	}
	if concrete.Kind() != reflect.Struct {
		return nil, &Error{Type: concrete, Msg: "target is not a struct"}
	}
	out := reflect.New(concrete)
	if err := c.documentToStruct(doc, out.Elem()); err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

func (c *Converter) documentToStruct(doc types.Document, v reflect.Value) error {
	fields, err := registry.FieldsOf(v.Type())
	if err != nil {
		return &Error{Type: v.Type(), Msg: err.Error()}
	}
	for _, f := range fields {
		raw, ok := doc[f.Name]
		if !ok || raw == nil {
			continue
		}
		if err := c.documentToValue(raw, v.Field(f.Index)); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

func (c *Converter) documentToValue(raw any, field reflect.Value) error {
	for _, cc := range c.custom {
		if cc.FromDocument == nil {
			continue
		}
		ft := field.Type()
		isPtr := ft.Kind() == reflect.Ptr
		if isPtr {
			ft = ft.Elem()
		}
		if ft != cc.Type {
			continue
		}
		out, err := cc.FromDocument(raw)
		if err != nil {
			return &Error{Type: ft, Msg: err.Error()}
		}
		ov := reflect.ValueOf(out)
		if isPtr {
			p := reflect.New(ft)
			p.Elem().Set(ov)
			field.Set(p)
		} else {
			field.Set(ov)
		}
		return nil
	}

	switch field.Kind() {
	case reflect.Ptr:
		p := reflect.New(field.Type().Elem())
		if err := c.documentToValue(raw, p.Elem()); err != nil {
			return err
		}
		field.Set(p)
		return nil

	case reflect.Interface:
		m, ok := asDocument(raw)
		if !ok {
			// Scalar stored through an interface field.
			rv := reflect.ValueOf(raw)
			if !rv.Type().AssignableTo(field.Type()) {
				return &Error{Type: field.Type(), Msg: fmt.Sprintf("cannot assign %T to interface", raw)}
			}
			field.Set(rv)
			return nil
		}
		class, ok := m.Class()
		if !ok {
			return &Error{Type: field.Type(), Msg: "missing discriminator for polymorphic field"}
		}
		t, ok := c.reg.ByClass(class)
		if !ok {
			return &Error{Type: field.Type(), Msg: fmt.Sprintf("unregistered class %q", class)}
		}
		out := reflect.New(t)
		if err := c.documentToStruct(m, out.Elem()); err != nil {
			return err
		}
		// Prefer the value form when it satisfies the interface.
		if t.Implements(field.Type()) {
			field.Set(out.Elem())
			return nil
		}
		if out.Type().Implements(field.Type()) {
			field.Set(out)
			return nil
		}
		return &Error{Type: field.Type(), Msg: fmt.Sprintf("class %q does not implement interface", class)}

	case reflect.Struct:
		m, ok := asDocument(raw)
		if !ok {
			return &Error{Type: field.Type(), Msg: fmt.Sprintf("expected nested document, got %T", raw)}
		}
		return c.documentToStruct(m, field)

	case reflect.Slice:
		items, ok := raw.([]any)
		if !ok {
			return &Error{Type: field.Type(), Msg: fmt.Sprintf("expected sequence, got %T", raw)}
		}
		out := reflect.MakeSlice(field.Type(), len(items), len(items))
		for i, item := range items {
			if item == nil {
				continue
			}
			if err := c.documentToValue(item, out.Index(i)); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		field.Set(out)
		return nil

	case reflect.Map:
		m, ok := asStringMap(raw)
		if !ok {
			return &Error{Type: field.Type(), Msg: fmt.Sprintf("expected mapping, got %T", raw)}
		}
		out := reflect.MakeMapWithSize(field.Type(), len(m))
		for k, item := range m {
			ev := reflect.New(field.Type().Elem()).Elem()
			if item != nil {
				if err := c.documentToValue(item, ev); err != nil {
					return fmt.Errorf("key %q: %w", k, err)
				}
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(field.Type().Key()), ev)
		}
		field.Set(out)
		return nil

	default:
		return c.scalarToValue(raw, field)
	}
}

// scalarToValue coerces a document scalar into a struct field, tolerating
// the numeric widening JSON decoding introduces.
func (c *Converter) scalarToValue(raw any, field reflect.Value) error {
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(field.Type()) {
		switch rv.Kind() {
		case reflect.String, reflect.Bool,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			field.Set(rv.Convert(field.Type()))
			return nil
		}
	}
	// Last resort: parse from the string form.
	if s, ok := raw.(string); ok {
		if err := setFromString(field, s); err != nil {
			return &Error{Type: field.Type(), Msg: err.Error()}
		}
		return nil
	}
	return &Error{Type: field.Type(), Msg: fmt.Sprintf("cannot coerce %T", raw)}
}

func setFromString(field reflect.Value, s string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

func asDocument(raw any) (types.Document, bool) {
	switch m := raw.(type) {
	case types.Document:
		return m, true
	case map[string]any:
		return types.Document(m), true
	default:
		return nil, false
	}
}

func asStringMap(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case types.Document:
		return map[string]any(m), true
	default:
		return nil, false
	}
}
