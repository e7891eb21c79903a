// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlmsg

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"grimm.is/nlcore/nlerr"
)

// Schemas are plain data, so protocol families may ship them as YAML
// descriptors instead of Go tables:
//
//	name: ifaddrmsg
//	fields:
//	  - name: family
//	    kind: u8
//	  - name: index
//	    kind: u32
//	attrs:
//	  1: {name: ADDRESS, kind: bytes}
//	  3: {name: LABEL, kind: string}
//	  6: {name: CACHEINFO, kind: nested, attrs: {...}}

type yamlSchema struct {
	Name   string             `yaml:"name"`
	Fields []yamlField        `yaml:"fields"`
	Attrs  map[uint16]yamlAttr `yaml:"attrs"`
}

type yamlField struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Size int    `yaml:"size"`
}

type yamlAttr struct {
	Name  string              `yaml:"name"`
	Kind  string              `yaml:"kind"`
	Attrs map[uint16]yamlAttr `yaml:"attrs"`
}

var fieldKinds = map[string]FieldKind{
	"u8":     FieldU8,
	"u16":    FieldU16,
	"u32":    FieldU32,
	"u64":    FieldU64,
	"i32":    FieldI32,
	"be16":   FieldBE16,
	"be32":   FieldBE32,
	"bytes":  FieldBytes,
	"string": FieldString,
}

var attrKinds = map[string]AttrKind{
	"bytes":  AttrBytes,
	"flag":   AttrFlag,
	"u8":     AttrU8,
	"u16":    AttrU16,
	"u32":    AttrU32,
	"u64":    AttrU64,
	"i32":    AttrI32,
	"be16":   AttrBE16,
	"be32":   AttrBE32,
	"be64":   AttrBE64,
	"string": AttrString,
	"nested": AttrNested,
}

// ParseSchemaYAML loads a schema from its YAML descriptor.
func ParseSchemaYAML(data []byte) (*Schema, error) {
	var ys yamlSchema
	if err := yaml.Unmarshal(data, &ys); err != nil {
		return nil, nlerr.Wrap(err, nlerr.KindMalformed, "schema descriptor")
	}
	s := &Schema{Name: ys.Name}
	for _, yf := range ys.Fields {
		kind, ok := fieldKinds[yf.Kind]
		if !ok {
			return nil, nlerr.Errorf(nlerr.KindMalformed,
				"schema %s: field %s: unknown kind %q", ys.Name, yf.Name, yf.Kind)
		}
		s.Fields = append(s.Fields, Field{Name: yf.Name, Kind: kind, Size: yf.Size})
	}
	attrs, err := buildAttrTable(ys.Name, ys.Attrs)
	if err != nil {
		return nil, err
	}
	s.Attrs = attrs
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func buildAttrTable(schema string, in map[uint16]yamlAttr) (AttrTable, error) {
	if len(in) == 0 {
		return nil, nil
	}
	table := make(AttrTable, len(in))
	for typ, ya := range in {
		kind, ok := attrKinds[ya.Kind]
		if !ok {
			return nil, nlerr.Errorf(nlerr.KindMalformed,
				"schema %s: attr %d (%s): unknown kind %q", schema, typ, ya.Name, ya.Kind)
		}
		spec := AttrSpec{Name: ya.Name, Kind: kind}
		if kind == AttrNested {
			nested, err := buildAttrTable(fmt.Sprintf("%s.%s", schema, ya.Name), ya.Attrs)
			if err != nil {
				return nil, err
			}
			spec.Nested = nested
		}
		table[typ] = spec
	}
	return table, nil
}
