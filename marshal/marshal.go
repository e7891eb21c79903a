// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package marshal dispatches raw datagrams to decoders. A Marshal owns a
// registry of decode functions keyed by a protocol key, by default the
// header type field, optionally extracted from an arbitrary byte range
// with a partial mask for sub-protocols multiplexed over one type.
package marshal

import (
	"golang.org/x/sys/unix"

	"grimm.is/nlcore/nlenc"
	"grimm.is/nlcore/nlerr"
	"grimm.is/nlcore/nlmsg"
)

// DecodeFunc turns one raw datagram into a Message. Returning a nil
// message with a nil error skips the datagram: the caller drops it
// without an error. Filters use this to test a cheap predicate over raw
// bytes instead of paying for a full attribute decode.
type DecodeFunc func(b []byte) (*nlmsg.Message, error)

// KeyFormat selects the width of a custom dispatch key.
type KeyFormat uint8

const (
	KeyU8 KeyFormat = iota
	KeyU16
	KeyU32
)

// KeySpec extracts the dispatch key from a fixed byte range of the
// datagram instead of the header type field. Mask, when nonzero, is
// applied before lookup.
type KeySpec struct {
	Format KeyFormat
	Offset int
	Mask   uint32
}

func (ks KeySpec) extract(b []byte) (uint32, bool) {
	var key uint32
	switch ks.Format {
	case KeyU8:
		if ks.Offset+1 > len(b) {
			return 0, false
		}
		key = uint32(b[ks.Offset])
	case KeyU16:
		if ks.Offset+2 > len(b) {
			return 0, false
		}
		key = uint32(nlenc.Uint16(b[ks.Offset:]))
	default:
		if ks.Offset+4 > len(b) {
			return 0, false
		}
		key = nlenc.Uint32(b[ks.Offset:])
	}
	if ks.Mask != 0 {
		key &= ks.Mask
	}
	return key, true
}

// Marshal classifies datagrams and selects their decoders. A Marshal is
// owned by one Conn and mutated only from that Conn's context.
type Marshal struct {
	keySpec  *KeySpec
	registry map[uint32]DecodeFunc
	seqMap   map[uint32]DecodeFunc
	fallback DecodeFunc
}

// New creates a Marshal with the default key extraction (header type)
// and an opaque fallback decoder for unregistered keys.
func New() *Marshal {
	return &Marshal{
		registry: make(map[uint32]DecodeFunc),
		seqMap:   make(map[uint32]DecodeFunc),
		fallback: SchemaDecoder(nlmsg.Opaque),
	}
}

// SchemaDecoder adapts a schema into a DecodeFunc.
func SchemaDecoder(s *nlmsg.Schema) DecodeFunc {
	return func(b []byte) (*nlmsg.Message, error) {
		return nlmsg.Decode(b, s)
	}
}

// SetKeySpec switches to custom key extraction for every subsequent
// Parse call.
func (m *Marshal) SetKeySpec(ks KeySpec) {
	m.keySpec = &ks
}

// Register binds a decode function to a dispatch key. A nil fn marks the
// key as "skip": matching datagrams are dropped without error.
func (m *Marshal) Register(key uint32, fn DecodeFunc) {
	m.registry[key] = fn
}

// RegisterSchema binds a schema to a dispatch key.
func (m *Marshal) RegisterSchema(key uint32, s *nlmsg.Schema) {
	m.registry[key] = SchemaDecoder(s)
}

// SetSequenceParser overrides decoding for every datagram carrying the
// sequence number, regardless of key. The correlator installs these for
// requests that supplied their own decoder.
func (m *Marshal) SetSequenceParser(seq uint32, fn DecodeFunc) {
	m.seqMap[seq] = fn
}

// ClearSequenceParser removes a per-sequence override.
func (m *Marshal) ClearSequenceParser(seq uint32) {
	delete(m.seqMap, seq)
}

// Parser picks the decode function for one datagram: the per-sequence
// override first, then the key registry, then the fallback. A nil return
// means the datagram must be skipped.
func (m *Marshal) Parser(key uint32, flags uint16, seq uint32) DecodeFunc {
	if fn, ok := m.seqMap[seq]; ok {
		return fn
	}
	if fn, ok := m.registry[key]; ok {
		return fn
	}
	return m.fallback
}

// Parse splits a receive buffer into its concatenated datagrams and
// decodes each one. The kernel self-delimits messages via the header
// length field; the first slice that does not fit the remaining buffer
// stops the scan without error. Skipped datagrams produce no message.
func (m *Marshal) Parse(b []byte) ([]*nlmsg.Message, error) {
	var msgs []*nlmsg.Message
	offset := 0
	for offset+nlmsg.HeaderLen <= len(b) {
		h, err := nlmsg.DecodeHeader(b[offset:])
		if err != nil {
			return msgs, err
		}
		length := int(h.Length)
		if length < nlmsg.HeaderLen || offset+length > len(b) {
			break
		}
		datagram := b[offset : offset+length]
		offset += nlmsg.Align4(length)

		msg, err := m.parseOne(h, datagram)
		if err != nil {
			return msgs, err
		}
		if msg != nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

func (m *Marshal) parseOne(h nlmsg.Header, datagram []byte) (*nlmsg.Message, error) {
	// Error messages bypass the registry: their format is fixed by the
	// protocol, and an extended ack rides on NLMSG_DONE as well.
	if h.Type == nlmsg.TypeError {
		return m.parseError(datagram, nlmsg.ErrorSchema)
	}
	if h.Type == nlmsg.TypeDone && h.Flags&nlmsg.FlagAckTLVs != 0 {
		return m.parseError(datagram, nlmsg.DoneSchema)
	}

	key := uint32(h.Type)
	if m.keySpec != nil {
		k, ok := m.keySpec.extract(datagram)
		if !ok {
			return nil, nlerr.Errorf(nlerr.KindMalformed,
				"datagram of %d bytes too short for key at offset %d", len(datagram), m.keySpec.Offset)
		}
		key = k
	}

	fn := m.Parser(key, h.Flags, h.Sequence)
	if fn == nil {
		return nil, nil
	}
	return fn(datagram)
}

func (m *Marshal) parseError(datagram []byte, s *nlmsg.Schema) (*nlmsg.Message, error) {
	msg, err := nlmsg.Decode(datagram, s)
	if err != nil {
		return nil, err
	}
	code, _ := msg.Field("error")
	if c, ok := code.(int32); ok && c != 0 {
		perr := nlerr.NewProtocol(c)
		perr.Msg = extAckMsg(msg)
		if perr.Code == unix.ENOBUFS {
			// The kernel dropped datagrams; the socket is no longer
			// coherent and the caller must treat this as terminal.
			msg.Err = nlerr.Wrap(perr, nlerr.KindIO, "kernel buffer overrun")
		} else {
			msg.Err = perr
		}
	}
	return msg, nil
}

var extAckTable = nlmsg.AttrTable{
	1: {Name: "MSG", Kind: nlmsg.AttrString},
	2: {Name: "OFFS", Kind: nlmsg.AttrU32},
}

// extAckMsg extracts the human-readable extended ack string, when the
// kernel sent one. On an error message the ack records follow the echoed
// request, which is truncated to its header when the capped flag is set;
// on a done message they follow the status code directly.
func extAckMsg(m *nlmsg.Message) string {
	if m.Header.Flags&nlmsg.FlagAckTLVs == 0 {
		return ""
	}
	rawData, _ := m.Field("data")
	data, _ := rawData.([]byte)

	off := 0
	if rawHdr, ok := m.Field("msg"); ok {
		hb, ok := rawHdr.([]byte)
		if !ok || len(hb) < nlmsg.HeaderLen {
			return ""
		}
		if m.Header.Flags&nlmsg.FlagCapped == 0 {
			inner, err := nlmsg.DecodeHeader(hb)
			if err != nil || int(inner.Length) < nlmsg.HeaderLen {
				return ""
			}
			off = nlmsg.Align4(int(inner.Length) - nlmsg.HeaderLen)
		}
	}
	if off > len(data) {
		return ""
	}
	attrs, err := nlmsg.DecodeAttributes(data[off:], extAckTable)
	if err != nil {
		return ""
	}
	for _, a := range attrs {
		if a.Typ == 1 {
			if s, err := a.String(); err == nil {
				return s
			}
		}
	}
	return ""
}
