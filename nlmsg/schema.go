// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlmsg

import (
	"grimm.is/nlcore/nlerr"
)

// FieldKind selects the wire form of one fixed field.
type FieldKind uint8

const (
	FieldU8 FieldKind = iota
	FieldU16
	FieldU32
	FieldU64
	FieldI32
	FieldBE16
	FieldBE32
	// FieldBytes is a fixed-size opaque region; Size <= 0 means "the rest
	// of the message", legal only for the final field.
	FieldBytes
	// FieldString is a fixed-size zero-padded string region.
	FieldString
)

// Field describes one fixed field following the message header.
type Field struct {
	Name string
	Kind FieldKind
	// Size is the region size for FieldBytes and FieldString.
	Size int
}

// wireSize returns the encoded size of the field, or -1 for a tail region.
func (f Field) wireSize() int {
	switch f.Kind {
	case FieldU8:
		return 1
	case FieldU16, FieldBE16:
		return 2
	case FieldU32, FieldI32, FieldBE32:
		return 4
	case FieldU64:
		return 8
	default:
		if f.Size <= 0 {
			return -1
		}
		return f.Size
	}
}

// AttrKind selects the value form of an attribute.
type AttrKind uint8

const (
	// AttrBytes keeps the value as an opaque byte range.
	AttrBytes AttrKind = iota
	// AttrFlag is a zero-length presence marker.
	AttrFlag
	AttrU8
	AttrU16
	AttrU32
	AttrU64
	AttrI32
	AttrBE16
	AttrBE32
	AttrBE64
	// AttrString is a zero-terminated string.
	AttrString
	// AttrNested holds a recursive attribute chain described by the
	// spec's Nested table.
	AttrNested
)

// AttrSpec describes one attribute type within a table.
type AttrSpec struct {
	Name   string
	Kind   AttrKind
	Nested AttrTable
}

// AttrTable maps attribute type values to their specs. Types absent from
// the table decode as opaque UNKNOWN attributes and survive re-encoding
// verbatim.
type AttrTable map[uint16]AttrSpec

// Schema is the declarative description of one message format: the
// ordered fixed fields after the header, then the attribute table for the
// trailing chain. Schemas are plain data consumed by the generic codec;
// protocol families register them with a Marshal and never subclass
// anything.
type Schema struct {
	Name   string
	Fields []Field
	Attrs  AttrTable
}

// Empty is the schema of messages with no fixed fields and no known
// attributes: the body is parsed as a chain of opaque attributes.
var Empty = &Schema{Name: "nlmsg"}

// Opaque is the schema of messages whose body is not parsed at all; the
// whole payload lands in the "data" field. Dispatchers fall back to it
// for unregistered message types, where the body may not even be an
// attribute chain.
var Opaque = &Schema{
	Name:   "raw",
	Fields: []Field{{Name: "data", Kind: FieldBytes}},
}

// ErrorSchema describes NLMSG_ERROR: the negative errno, the echoed
// request header, and whatever tail the kernel chose to echo.
var ErrorSchema = &Schema{
	Name: "nlmsgerr",
	Fields: []Field{
		{Name: "error", Kind: FieldI32},
		{Name: "msg", Kind: FieldBytes, Size: HeaderLen},
		{Name: "data", Kind: FieldBytes},
	},
}

// DoneSchema describes NLMSG_DONE: the status code, then extended ack
// records when the flags announce them.
var DoneSchema = &Schema{
	Name: "nlmsgdone",
	Fields: []Field{
		{Name: "error", Kind: FieldI32},
		{Name: "data", Kind: FieldBytes},
	},
}

// validate rejects schemas the codec cannot drive.
func (s *Schema) validate() error {
	for i, f := range s.Fields {
		if f.Name == "" {
			return nlerr.Errorf(nlerr.KindMalformed, "schema %s: field %d has no name", s.Name, i)
		}
		if f.wireSize() < 0 && i != len(s.Fields)-1 {
			return nlerr.Errorf(nlerr.KindMalformed,
				"schema %s: tail field %s must be last", s.Name, f.Name)
		}
	}
	return nil
}

// fieldsSize returns the fixed fields region size, or -1 when the schema
// ends in a tail region.
func (s *Schema) fieldsSize() int {
	total := 0
	for _, f := range s.Fields {
		n := f.wireSize()
		if n < 0 {
			return -1
		}
		total += n
	}
	return total
}

// lookup resolves an attribute type against the table.
func (t AttrTable) lookup(typ uint16) (AttrSpec, bool) {
	spec, ok := t[typ&attrTypeMask]
	return spec, ok
}
