// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlmsg

import (
	"grimm.is/nlcore/nlenc"
	"grimm.is/nlcore/nlerr"
)

// Wire layout constants, from uapi/linux/netlink.h.
const (
	// HeaderLen is the size of the fixed message header.
	HeaderLen = 16
	// AttrHeaderLen is the size of an attribute header.
	AttrHeaderLen = 4
	// alignTo is the alignment of messages and attributes.
	alignTo = 4
)

// Message header flags.
const (
	FlagRequest uint16 = 0x1
	FlagMulti   uint16 = 0x2
	FlagAck     uint16 = 0x4
	FlagEcho    uint16 = 0x8
	FlagDumpInterrupted uint16 = 0x10

	// GET request modifiers.
	FlagRoot   uint16 = 0x100
	FlagMatch  uint16 = 0x200
	FlagAtomic uint16 = 0x400
	FlagDump   uint16 = FlagRoot | FlagMatch

	// NEW request modifiers.
	FlagReplace uint16 = 0x100
	FlagExcl    uint16 = 0x200
	FlagCreate  uint16 = 0x400
	FlagAppend  uint16 = 0x800

	// Error message modifiers. FlagCapped marks an echoed request
	// truncated to its header; FlagAckTLVs marks extended ack attributes
	// after the echoed request.
	FlagCapped  uint16 = 0x100
	FlagAckTLVs uint16 = 0x200
)

// Control message types. Types below TypeMinProtocol are reserved for
// control messages and never carry protocol payloads.
const (
	TypeNoop    uint16 = 0x1
	TypeError   uint16 = 0x2
	TypeDone    uint16 = 0x3
	TypeOverrun uint16 = 0x4

	TypeMinProtocol uint16 = 0x10
)

// Attribute type flag bits. The two high bits of the attribute type field
// are flags, not part of the type value.
const (
	NestedFlag       uint16 = 0x8000
	NetByteOrderFlag uint16 = 0x4000
	attrTypeMask     uint16 = ^(NestedFlag | NetByteOrderFlag)
)

// Align4 rounds n up to the next 4-byte boundary.
func Align4(n int) int {
	return (n + alignTo - 1) &^ (alignTo - 1)
}

// Header is the fixed netlink message header. Length covers the header,
// the fields and the attribute chain. Sequence zero is reserved for
// unsolicited broadcast traffic.
type Header struct {
	Length   uint32
	Type     uint16
	Flags    uint16
	Sequence uint32
	PortID   uint32
}

// DecodeHeader parses a fixed header from the beginning of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, nlerr.Errorf(nlerr.KindMalformed, "short header: %d bytes", len(b))
	}
	return Header{
		Length:   nlenc.Uint32(b[0:4]),
		Type:     nlenc.Uint16(b[4:6]),
		Flags:    nlenc.Uint16(b[6:8]),
		Sequence: nlenc.Uint32(b[8:12]),
		PortID:   nlenc.Uint32(b[12:16]),
	}, nil
}

// Put writes the header into the first HeaderLen bytes of b.
func (h Header) Put(b []byte) {
	nlenc.PutUint32(b[0:4], h.Length)
	nlenc.PutUint16(b[4:6], h.Type)
	nlenc.PutUint16(b[6:8], h.Flags)
	nlenc.PutUint32(b[8:12], h.Sequence)
	nlenc.PutUint32(b[12:16], h.PortID)
}
