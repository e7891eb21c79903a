// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package nlmsg implements the netlink message codec: the fixed header,
// schema-driven fields and the recursive attribute chain. The codec knows
// nothing about what any particular message means; protocol families
// describe their formats with Schema values and the same code decodes all
// of them.
package nlmsg

import (
	"grimm.is/nlcore/nlenc"
	"grimm.is/nlcore/nlerr"
)

// Message is one structured datagram. It is immutable once decoded except
// for the lazy attribute caches; outbound messages are assembled with New
// and the builder methods, then sealed by Encode.
type Message struct {
	Header Header

	// Err carries a kernel-reported error attached by the marshal when
	// the datagram is an NLMSG_ERROR with a nonzero code.
	Err error

	schema *Schema
	fields map[string]any
	attrs  []*Attribute
}

// New starts an outbound message for the given schema. Header fields are
// stamped later by the correlator.
func New(s *Schema) *Message {
	if s == nil {
		s = Empty
	}
	return &Message{
		schema: s,
		fields: make(map[string]any, len(s.Fields)),
	}
}

// Schema returns the schema the message was decoded or built with.
func (m *Message) Schema() *Schema { return m.schema }

// Decode parses one datagram against a schema. The buffer must hold the
// complete message; Header.Length past the buffer end is rejected.
func Decode(b []byte, s *Schema) (*Message, error) {
	if s == nil {
		s = Empty
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	if int(h.Length) < HeaderLen || int(h.Length) > len(b) {
		return nil, nlerr.Errorf(nlerr.KindMalformed,
			"declared length %d outside buffer of %d bytes", h.Length, len(b))
	}
	m := &Message{
		Header: h,
		schema: s,
		fields: make(map[string]any, len(s.Fields)),
	}
	body := b[HeaderLen:h.Length]

	offset := 0
	tail := false
	for _, f := range s.Fields {
		n := f.wireSize()
		if n < 0 {
			// Tail region: the rest of the body, attributes excluded.
			m.fields[f.Name] = append([]byte(nil), body[offset:]...)
			offset = len(body)
			tail = true
			break
		}
		if offset+n > len(body) {
			return nil, nlerr.Errorf(nlerr.KindMalformed,
				"field %s at offset %d runs past %d body bytes", f.Name, offset, len(body))
		}
		v, err := decodeField(f, body[offset:offset+n])
		if err != nil {
			return nil, err
		}
		m.fields[f.Name] = v
		offset += n
	}
	if tail {
		return m, nil
	}

	// The attribute chain starts on the next 4-byte boundary.
	offset = Align4(offset)
	if offset > len(body) {
		return m, nil
	}
	attrs, err := decodeAttrs(body[offset:], s.Attrs)
	if err != nil {
		return nil, err
	}
	m.attrs = attrs
	return m, nil
}

// Encode serializes the message, computing Header.Length from the actual
// content. Fields are emitted in schema order, attributes in insertion
// order with 4-byte padding.
func (m *Message) Encode() ([]byte, error) {
	body := make([]byte, 0, 64)
	for _, f := range m.schema.Fields {
		b, err := encodeField(f, m.fields[f.Name])
		if err != nil {
			return nil, err
		}
		body = append(body, b...)
	}
	for pad := Align4(len(body)) - len(body); pad > 0; pad-- {
		body = append(body, 0)
	}
	chain, err := encodeAttrs(m.attrs)
	if err != nil {
		return nil, err
	}
	body = append(body, chain...)

	out := make([]byte, HeaderLen+len(body))
	m.Header.Length = uint32(len(out))
	m.Header.Put(out)
	copy(out[HeaderLen:], body)
	return out, nil
}

// Field returns a decoded fixed field by name.
func (m *Message) Field(name string) (any, bool) {
	v, ok := m.fields[name]
	return v, ok
}

// FieldUint32 is a convenience accessor for integer fields of any width.
func (m *Message) FieldUint32(name string) (uint32, bool) {
	switch v := m.fields[name].(type) {
	case uint8:
		return uint32(v), true
	case uint16:
		return uint32(v), true
	case uint32:
		return v, true
	case int32:
		return uint32(v), true
	default:
		return 0, false
	}
}

// SetField stores a fixed field value for encoding.
func (m *Message) SetField(name string, v any) *Message {
	m.fields[name] = v
	return m
}

// AddAttr appends an outbound attribute. See NewAttr for value forms.
func (m *Message) AddAttr(typ uint16, value any) *Message {
	a := NewAttr(typ, value)
	a.resolve(m.schema.Attrs)
	m.attrs = append(m.attrs, a)
	return m
}

// AddNested appends an outbound nested attribute built from a child
// chain.
func (m *Message) AddNested(typ uint16, children ...*Attribute) *Message {
	return m.AddAttr(typ, children)
}

// AddBytes appends an outbound attribute with an opaque byte value.
func (m *Message) AddBytes(typ uint16, b []byte) *Message {
	return m.AddAttr(typ, b)
}

// Attributes returns the attribute chain in wire order.
func (m *Message) Attributes() []*Attribute { return m.attrs }

// Attr descends the attribute chain by schema names, one nested level per
// path element, returning the first match at each level. A nil result
// with nil error means the path is absent.
func (m *Message) Attr(path ...string) (*Attribute, error) {
	if len(path) == 0 {
		return nil, nil
	}
	attrs := m.attrs
	for i, name := range path {
		var match *Attribute
		for _, a := range attrs {
			if a.Name == name {
				match = a
				break
			}
		}
		if match == nil {
			return nil, nil
		}
		if i == len(path)-1 {
			return match, nil
		}
		children, err := match.Nested()
		if err != nil {
			return nil, err
		}
		attrs = children
	}
	return nil, nil
}

// Attrs returns every top-level attribute sharing a name. The protocol
// does not guarantee uniqueness, so multi-value attributes are normal.
func (m *Message) Attrs(name string) []*Attribute {
	var out []*Attribute
	for _, a := range m.attrs {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

// Multi reports whether the message carries the multi-part flag.
func (m *Message) Multi() bool {
	return m.Header.Flags&FlagMulti != 0
}

func decodeField(f Field, b []byte) (any, error) {
	switch f.Kind {
	case FieldU8:
		return b[0], nil
	case FieldU16:
		return nlenc.Uint16(b), nil
	case FieldU32:
		return nlenc.Uint32(b), nil
	case FieldU64:
		return nlenc.Uint64(b), nil
	case FieldI32:
		return nlenc.Int32(b), nil
	case FieldBE16:
		return nlenc.Uint16BE(b), nil
	case FieldBE32:
		return nlenc.Uint32BE(b), nil
	case FieldString:
		return nlenc.String(b), nil
	case FieldBytes:
		return append([]byte(nil), b...), nil
	default:
		return nil, nlerr.Errorf(nlerr.KindMalformed, "field %s: unknown kind %d", f.Name, f.Kind)
	}
}

func encodeField(f Field, v any) ([]byte, error) {
	bad := func() ([]byte, error) {
		return nil, nlerr.Errorf(nlerr.KindMalformed, "field %s: value %v does not fit kind %d", f.Name, v, f.Kind)
	}
	switch f.Kind {
	case FieldU8:
		u, ok := v.(uint8)
		if !ok {
			if v == nil {
				u = 0
			} else {
				return bad()
			}
		}
		return []byte{u}, nil
	case FieldU16, FieldBE16:
		u, ok := v.(uint16)
		if !ok && v != nil {
			return bad()
		}
		b := make([]byte, 2)
		if f.Kind == FieldBE16 {
			nlenc.PutUint16BE(b, u)
		} else {
			nlenc.PutUint16(b, u)
		}
		return b, nil
	case FieldU32, FieldBE32:
		u, ok := v.(uint32)
		if !ok && v != nil {
			return bad()
		}
		b := make([]byte, 4)
		if f.Kind == FieldBE32 {
			nlenc.PutUint32BE(b, u)
		} else {
			nlenc.PutUint32(b, u)
		}
		return b, nil
	case FieldU64:
		u, ok := v.(uint64)
		if !ok && v != nil {
			return bad()
		}
		b := make([]byte, 8)
		nlenc.PutUint64(b, u)
		return b, nil
	case FieldI32:
		u, ok := v.(int32)
		if !ok && v != nil {
			return bad()
		}
		b := make([]byte, 4)
		nlenc.PutInt32(b, u)
		return b, nil
	case FieldString:
		s, _ := v.(string)
		if f.Size <= 0 || len(s) > f.Size {
			return bad()
		}
		b := make([]byte, f.Size)
		copy(b, s)
		return b, nil
	case FieldBytes:
		raw, _ := v.([]byte)
		if f.Size <= 0 {
			// Tail region: emitted as-is.
			return raw, nil
		}
		if len(raw) > f.Size {
			return bad()
		}
		b := make([]byte, f.Size)
		copy(b, raw)
		return b, nil
	default:
		return bad()
	}
}
