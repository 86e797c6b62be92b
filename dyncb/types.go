// Package dyncb implements the per-instrumentation-point callback arrays of
// translated regions, the region arena that owns them and the inline operation
// executor.
//
// Arrays are built once, while a region is being translated, and are read-only
// afterwards. They are never edited entry by entry: a code-cache flush discards
// whole regions together with their arrays.
package dyncb

import (
	"fmt"
)

// Flags declares what guest register access a callback needs
type Flags int

const (
	// NoRegs callbacks never inspect guest registers
	NoRegs Flags = iota
	// RRegs callbacks may read guest registers
	RRegs
	// RWRegs callbacks may read and write guest registers
	RWRegs
)

func (f Flags) String() string {
	switch f {
	case NoRegs:
		return "none"
	case RRegs:
		return "r"
	case RWRegs:
		return "rw"
	default:
		return fmt.Sprintf("flags(%d)", int(f))
	}
}

// RW is the memory access class filter of a memory callback
type RW int

const (
	// Read matches loads
	Read RW = 1
	// Write matches stores
	Write RW = 2
	// ReadWrite matches every access
	ReadWrite RW = Read | Write
)

// Matches reports whether an access of class access passes the filter
func (rw RW) Matches(access RW) bool {
	return rw&access != 0
}

func (rw RW) String() string {
	switch rw {
	case Read:
		return "r"
	case Write:
		return "w"
	case ReadWrite:
		return "rw"
	default:
		return fmt.Sprintf("rw(%d)", int(rw))
	}
}

// ParseRW parses "r", "w" or "rw"
func ParseRW(s string) (RW, error) {
	switch s {
	case "r":
		return Read, nil
	case "w":
		return Write, nil
	case "rw", "wr":
		return ReadWrite, nil
	default:
		return 0, fmt.Errorf("unknown memory access class %q", s)
	}
}

// Cond is the comparison of a conditional callback
type Cond int

const (
	// Never drops the entry at registration
	Never Cond = iota
	// Always registers a plain callback
	Always
	// EQ fires when the value equals the immediate
	EQ
	// NE fires when the value differs from the immediate
	NE
	// LT fires when the value is below the immediate
	LT
	// LE fires when the value is at most the immediate
	LE
	// GT fires when the value is above the immediate
	GT
	// GE fires when the value is at least the immediate
	GE
)

// Eval compares the live value against the immediate
func (c Cond) Eval(value, imm uint64) bool {
	switch c {
	case Always:
		return true
	case EQ:
		return value == imm
	case NE:
		return value != imm
	case LT:
		return value < imm
	case LE:
		return value <= imm
	case GT:
		return value > imm
	case GE:
		return value >= imm
	default:
		return false
	}
}

var condNames = [...]string{"never", "always", "eq", "ne", "lt", "le", "gt", "ge"}

func (c Cond) String() string {
	if c >= 0 && int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cond(%d)", int(c))
}

// Op is an inline operation
type Op int

const (
	// StoreU64 stores the immediate at the target
	StoreU64 Op = iota
	// AddU64 adds the immediate to the target
	AddU64
)

func (o Op) String() string {
	switch o {
	case StoreU64:
		return "store_u64"
	case AddU64:
		return "add_u64"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// EntryKind tags the variant of an array entry
type EntryKind int

const (
	KindRegular EntryKind = iota
	KindCond
	KindMem
	KindInlineAddU64
	KindInlineStoreU64
)

// Inline reports whether entries of this kind run without calling into a module
func (k EntryKind) Inline() bool {
	return k == KindInlineAddU64 || k == KindInlineStoreU64
}

// UdataFunc is a block or instruction execution callback
type UdataFunc func(vcpu int, udata any)

// MemFunc is a memory access callback
type MemFunc func(vcpu int, info MemInfo, vaddr uint64, udata any)

// MemInfo packs the properties of one guest memory access:
// bits 0-3 hold log2 of the access size, bit 4 sign extension,
// bit 5 big-endian byte order, bit 6 store.
type MemInfo uint32

const (
	memSizeMask   MemInfo = 0xf
	memSignExtend MemInfo = 1 << 4
	memBigEndian  MemInfo = 1 << 5
	memStore      MemInfo = 1 << 6
)

// NewMemInfo packs an access description. size must be a power of two up to 1<<15.
func NewMemInfo(size int, signed, bigEndian, store bool) MemInfo {
	var shift MemInfo
	for s := size; s > 1; s >>= 1 {
		shift++
	}
	info := shift & memSizeMask
	if signed {
		info |= memSignExtend
	}
	if bigEndian {
		info |= memBigEndian
	}
	if store {
		info |= memStore
	}
	return info
}

// SizeShift returns log2 of the access size in bytes
func (m MemInfo) SizeShift() uint { return uint(m & memSizeMask) }

// Size returns the access size in bytes
func (m MemInfo) Size() int { return 1 << m.SizeShift() }

// SignExtended reports whether a load is sign extended
func (m MemInfo) SignExtended() bool { return m&memSignExtend != 0 }

// BigEndian reports the byte order of the access
func (m MemInfo) BigEndian() bool { return m&memBigEndian != 0 }

// IsStore reports whether the access writes memory
func (m MemInfo) IsStore() bool { return m&memStore != 0 }

// RW returns the access class
func (m MemInfo) RW() RW {
	if m.IsStore() {
		return Write
	}
	return Read
}
