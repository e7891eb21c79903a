// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlmsg

import (
	"grimm.is/nlcore/nlenc"
	"grimm.is/nlcore/nlerr"
)

// UnknownName is the name given to attributes absent from the schema
// table. They keep their raw bytes and re-encode verbatim.
const UnknownName = "UNKNOWN"

// Attribute is one typed, length-prefixed record in a message's attribute
// chain. Duplicate types are legal; order is preserved. Values decode
// lazily: an attribute never accessed keeps only its byte range, so
// re-encoding a partially-read message stays lossless.
type Attribute struct {
	Typ   uint16
	Name  string
	Flags uint16 // NestedFlag / NetByteOrderFlag bits from the wire

	spec    AttrSpec
	known   bool
	data    []byte // value bytes from the wire, nil for built attributes
	decoded bool
	value   any
	nested  []*Attribute
}

// NewAttr builds an outbound attribute. The value form picks the wire
// encoding: uint8/16/32/64, int32, string (zero-terminated), []byte,
// []*Attribute (nested chain) or nil (flag).
func NewAttr(typ uint16, value any) *Attribute {
	a := &Attribute{Typ: typ, decoded: true}
	switch v := value.(type) {
	case []*Attribute:
		a.nested = v
		a.Flags = NestedFlag
	default:
		a.value = value
	}
	return a
}

// Bytes returns the raw value bytes. For wire-decoded attributes this is
// the original byte range; for built attributes it is the encoding of the
// value.
func (a *Attribute) Bytes() ([]byte, error) {
	if a.data != nil {
		return a.data, nil
	}
	return a.encodeValue()
}

// Value decodes the attribute per its schema spec, caching the result.
// Unknown attributes yield their raw bytes. Nested attributes yield their
// child chain.
func (a *Attribute) Value() (any, error) {
	if a.decoded {
		if a.nested != nil {
			return a.nested, nil
		}
		return a.value, nil
	}
	if a.known && a.spec.Kind == AttrNested {
		return a.Nested()
	}
	v, err := decodeScalar(a.kind(), a.data)
	if err != nil {
		return nil, err
	}
	a.value = v
	a.decoded = true
	return v, nil
}

// Nested decodes the child attribute chain on first access and caches it.
func (a *Attribute) Nested() ([]*Attribute, error) {
	if a.nested != nil || a.decoded {
		return a.nested, nil
	}
	table := a.spec.Nested
	children, err := decodeAttrs(a.data, table)
	if err != nil {
		return nil, err
	}
	a.nested = children
	a.decoded = true
	return children, nil
}

// String decodes the value as a zero-terminated string.
func (a *Attribute) String() (string, error) {
	b, err := a.Bytes()
	if err != nil {
		return "", err
	}
	return nlenc.String(b), nil
}

// Uint32 decodes the value as a host byte order uint32.
func (a *Attribute) Uint32() (uint32, error) {
	b, err := a.Bytes()
	if err != nil {
		return 0, err
	}
	if len(b) < 4 {
		return 0, nlerr.Errorf(nlerr.KindMalformed, "attribute %s: %d bytes, want 4", a.label(), len(b))
	}
	return nlenc.Uint32(b), nil
}

// Uint16 decodes the value as a host byte order uint16.
func (a *Attribute) Uint16() (uint16, error) {
	b, err := a.Bytes()
	if err != nil {
		return 0, err
	}
	if len(b) < 2 {
		return 0, nlerr.Errorf(nlerr.KindMalformed, "attribute %s: %d bytes, want 2", a.label(), len(b))
	}
	return nlenc.Uint16(b), nil
}

func (a *Attribute) kind() AttrKind {
	if a.known {
		return a.spec.Kind
	}
	return AttrBytes
}

func (a *Attribute) label() string {
	if a.Name != "" {
		return a.Name
	}
	return UnknownName
}

// resolve binds the attribute to its schema spec.
func (a *Attribute) resolve(table AttrTable) {
	if spec, ok := table.lookup(a.Typ); ok {
		a.spec = spec
		a.known = true
		a.Name = spec.Name
	} else {
		a.Name = UnknownName
	}
}

func decodeScalar(kind AttrKind, b []byte) (any, error) {
	need := map[AttrKind]int{
		AttrU8: 1, AttrU16: 2, AttrU32: 4, AttrU64: 8,
		AttrI32: 4, AttrBE16: 2, AttrBE32: 4, AttrBE64: 8,
	}[kind]
	if len(b) < need {
		return nil, nlerr.Errorf(nlerr.KindMalformed, "attribute value: %d bytes, want %d", len(b), need)
	}
	switch kind {
	case AttrFlag:
		return true, nil
	case AttrU8:
		return b[0], nil
	case AttrU16:
		return nlenc.Uint16(b), nil
	case AttrU32:
		return nlenc.Uint32(b), nil
	case AttrU64:
		return nlenc.Uint64(b), nil
	case AttrI32:
		return nlenc.Int32(b), nil
	case AttrBE16:
		return nlenc.Uint16BE(b), nil
	case AttrBE32:
		return nlenc.Uint32BE(b), nil
	case AttrBE64:
		return nlenc.Uint64BE(b), nil
	case AttrString:
		return nlenc.String(b), nil
	default:
		return b, nil
	}
}

// decodeAttrs parses one attribute chain. Any declared length running
// past the buffer is a malformed datagram, not a truncation to tolerate.
func decodeAttrs(b []byte, table AttrTable) ([]*Attribute, error) {
	var attrs []*Attribute
	offset := 0
	for offset+AttrHeaderLen <= len(b) {
		length := int(nlenc.Uint16(b[offset : offset+2]))
		rawTyp := nlenc.Uint16(b[offset+2 : offset+4])
		if length < AttrHeaderLen {
			return nil, nlerr.Errorf(nlerr.KindMalformed,
				"attribute at offset %d: declared length %d below header size", offset, length)
		}
		if offset+length > len(b) {
			return nil, nlerr.Errorf(nlerr.KindMalformed,
				"attribute at offset %d: declared length %d exceeds %d available bytes",
				offset, length, len(b)-offset)
		}
		a := &Attribute{
			Typ:   rawTyp & attrTypeMask,
			Flags: rawTyp &^ attrTypeMask,
			data:  b[offset+AttrHeaderLen : offset+length],
		}
		a.resolve(table)
		attrs = append(attrs, a)
		offset += Align4(length)
	}
	return attrs, nil
}

// DecodeAttributes parses a raw attribute chain that lives outside a
// message body, such as the extended ack records of an error message.
func DecodeAttributes(b []byte, table AttrTable) ([]*Attribute, error) {
	return decodeAttrs(b, table)
}

// encodeValue serializes a built attribute's value without header or
// padding.
func (a *Attribute) encodeValue() ([]byte, error) {
	if a.nested != nil {
		return encodeAttrs(a.nested)
	}
	switch v := a.value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return nlenc.Bytes(v), nil
	case uint8:
		return []byte{v}, nil
	case uint16:
		b := make([]byte, 2)
		if a.Flags&NetByteOrderFlag != 0 {
			nlenc.PutUint16BE(b, v)
		} else {
			nlenc.PutUint16(b, v)
		}
		return b, nil
	case uint32:
		b := make([]byte, 4)
		if a.Flags&NetByteOrderFlag != 0 {
			nlenc.PutUint32BE(b, v)
		} else {
			nlenc.PutUint32(b, v)
		}
		return b, nil
	case uint64:
		b := make([]byte, 8)
		if a.Flags&NetByteOrderFlag != 0 {
			nlenc.PutUint64BE(b, v)
		} else {
			nlenc.PutUint64(b, v)
		}
		return b, nil
	case int32:
		b := make([]byte, 4)
		nlenc.PutInt32(b, v)
		return b, nil
	default:
		return nil, nlerr.Errorf(nlerr.KindMalformed, "attribute %s: unsupported value type %T", a.label(), v)
	}
}

// encodeAttrs serializes an attribute chain with per-attribute padding.
// Wire-decoded attributes re-emit their original bytes.
func encodeAttrs(attrs []*Attribute) ([]byte, error) {
	var out []byte
	for _, a := range attrs {
		value, err := a.Bytes()
		if err != nil {
			return nil, err
		}
		length := AttrHeaderLen + len(value)
		if length > 0xffff {
			return nil, nlerr.Errorf(nlerr.KindMalformed, "attribute %s: value too large", a.label())
		}
		hdr := make([]byte, AttrHeaderLen)
		nlenc.PutUint16(hdr[0:2], uint16(length))
		nlenc.PutUint16(hdr[2:4], a.Typ|a.Flags)
		out = append(out, hdr...)
		out = append(out, value...)
		for pad := Align4(length) - length; pad > 0; pad-- {
			out = append(out, 0)
		}
	}
	return out, nil
}
