// Package tcg is a synthetic translation engine driving the registry the way
// an emulator's code generator does: vcpu goroutines look blocks up in a code
// cache, translate missing ones, and execute their instrumentation points.
package tcg

import (
	"math/rand"

	"github.com/go-lynx/emuplug/dyncb"
)

// Access is one guest memory access performed by an instruction
type Access struct {
	Vaddr uint64
	Info  dyncb.MemInfo
}

// Insn is a guest instruction of a synthetic program
type Insn struct {
	dyncb.InsnInfo
	Access []Access
}

// Block is a straight-line run of instructions ending in a branch
type Block struct {
	Vaddr uint64
	Insns []Insn
	// Next holds the indices of the possible successor blocks
	Next []int
	// Syscall is the number of the system call ending the block, or -1
	Syscall int64
}

// Infos returns the instruction descriptions handed to the registry at translation
func (b *Block) Infos() []dyncb.InsnInfo {
	out := make([]dyncb.InsnInfo, len(b.Insns))
	for i := range b.Insns {
		out[i] = b.Insns[i].InsnInfo
	}
	return out
}

// Program is a synthetic guest program
type Program struct {
	Blocks []Block
}

// NumInsns returns the instruction count over all blocks
func (p *Program) NumInsns() int {
	n := 0
	for i := range p.Blocks {
		n += len(p.Blocks[i].Insns)
	}
	return n
}

const (
	textBase = 0x400000
	dataBase = 0x10000000
	insnSize = 4
)

var aluOps = []string{"add", "sub", "and", "orr", "eor", "lsl", "mov", "cmp"}

// Generate builds a deterministic program of n blocks from seed. Every block
// has between 1 and 8 instructions, some of which load or store, and ends in
// a branch to one or two successors. Roughly one block in eight ends with a
// system call.
func Generate(seed int64, n int) *Program {
	if n < 1 {
		n = 1
	}
	rng := rand.New(rand.NewSource(seed))
	p := &Program{Blocks: make([]Block, n)}
	pc := uint64(textBase)
	for b := range p.Blocks {
		blk := &p.Blocks[b]
		blk.Vaddr = pc
		blk.Syscall = -1
		count := 1 + rng.Intn(8)
		for i := 0; i < count; i++ {
			in := Insn{InsnInfo: dyncb.InsnInfo{Vaddr: pc, Bytes: encode(rng.Uint32())}}
			switch {
			case i == count-1:
				in.Mnemonic = "b"
				if rng.Intn(8) == 0 {
					in.Mnemonic = "svc"
					blk.Syscall = int64(rng.Intn(300))
				}
			case rng.Intn(4) == 0:
				in.Mnemonic = "ldr"
				in.Access = []Access{{Vaddr: dataAddr(rng), Info: dyncb.NewMemInfo(8, false, false, false)}}
			case rng.Intn(5) == 0:
				in.Mnemonic = "str"
				in.Access = []Access{{Vaddr: dataAddr(rng), Info: dyncb.NewMemInfo(4, false, false, true)}}
			case rng.Intn(12) == 0:
				// load-pair followed by the store half of an atomic update
				in.Mnemonic = "ldxr"
				in.Access = []Access{
					{Vaddr: dataAddr(rng), Info: dyncb.NewMemInfo(8, false, false, false)},
					{Vaddr: dataAddr(rng), Info: dyncb.NewMemInfo(8, false, false, true)},
				}
			default:
				in.Mnemonic = aluOps[rng.Intn(len(aluOps))]
			}
			blk.Insns = append(blk.Insns, in)
			pc += insnSize
		}
		blk.Next = []int{(b + 1) % n}
		if n > 1 && rng.Intn(2) == 0 {
			blk.Next = append(blk.Next, rng.Intn(n))
		}
	}
	return p
}

func dataAddr(rng *rand.Rand) uint64 {
	return dataBase + uint64(rng.Intn(1<<16))&^7
}

func encode(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}
