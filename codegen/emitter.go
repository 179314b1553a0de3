// Package codegen renders IC handlers as arm64 code templates and
// disassembles them for the print-code facility.
package codegen

import (
	"encoding/binary"
	"fmt"
)

// Reg is an arm64 general purpose register number. 31 is the zero
// register or the stack pointer depending on the instruction.
type Reg uint8

// Register assignment shared by every handler template.
const (
	X0  Reg = 0
	X1  Reg = 1
	X2  Reg = 2
	X3  Reg = 3
	X4  Reg = 4
	X5  Reg = 5
	X6  Reg = 6
	IP0 Reg = 16
	IP1 Reg = 17
	FP  Reg = 29
	LR  Reg = 30
	SP  Reg = 31
	XZR Reg = 31

	ReceiverReg Reg = X0
	ValueReg    Reg = X1 // also the key register of keyed loads
	NameReg     Reg = X2
	KeyedValue  Reg = X2
	Scratch1    Reg = X3
	Scratch2    Reg = X4
	HolderReg   Reg = X5
	Scratch3    Reg = X6
)

// Cond is an arm64 condition code.
type Cond uint32

const (
	CondEQ Cond = 0
	CondNE Cond = 1
	CondHS Cond = 2
	CondLO Cond = 3
)

// HeapObjectTag is added to every heap pointer held in a register.
const HeapObjectTag = 1

type label int

type fixupKind uint8

const (
	fixBranch26 fixupKind = iota
	fixBranch19
	fixBranch14
	fixLiteral
)

type fixup struct {
	at     int
	target int
	kind   fixupKind
}

// Literal is one entry of a code object's constant pool.
type Literal struct {
	Value   uint64
	Comment string
}

// Code is an assembled handler: instruction words followed by a literal
// pool aligned to eight bytes.
type Code struct {
	Name     string
	Insts    []uint32
	Literals []Literal
}

// literalBase returns the byte offset of the literal pool.
func (c *Code) literalBase() int {
	n := len(c.Insts)
	if n%2 != 0 {
		n++
	}
	return n * 4
}

// Size returns the size of the code object in bytes.
func (c *Code) Size() int { return c.literalBase() + 8*len(c.Literals) }

// Bytes returns the little-endian machine code including the pool.
func (c *Code) Bytes() []byte {
	out := make([]byte, c.Size())
	for i, w := range c.Insts {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	if len(c.Insts)%2 != 0 {
		binary.LittleEndian.PutUint32(out[len(c.Insts)*4:], nop)
	}
	base := c.literalBase()
	for i, l := range c.Literals {
		binary.LittleEndian.PutUint64(out[base+8*i:], l.Value)
	}
	return out
}

const nop uint32 = 0xD503201F

// ---------------------------------------------------------------------------
// Emitter
// ---------------------------------------------------------------------------

type emitter struct {
	insts    []uint32
	literals []Literal
	litIndex map[Literal]int
	labels   []int
	fixups   []fixup
	err      error
}

func newEmitter() *emitter {
	return &emitter{litIndex: make(map[Literal]int)}
}

func (e *emitter) emit(w uint32) { e.insts = append(e.insts, w) }

func (e *emitter) fail(format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf(format, args...)
	}
}

func (e *emitter) newLabel() label {
	e.labels = append(e.labels, -1)
	return label(len(e.labels) - 1)
}

func (e *emitter) bind(l label) { e.labels[l] = len(e.insts) }

func (e *emitter) literal(v uint64, comment string) int {
	key := Literal{Value: v, Comment: comment}
	if i, ok := e.litIndex[key]; ok {
		return i
	}
	e.literals = append(e.literals, key)
	e.litIndex[key] = len(e.literals) - 1
	return len(e.literals) - 1
}

// ldrLiteral loads a pool constant into rt.
func (e *emitter) ldrLiteral(rt Reg, v uint64, comment string) {
	i := e.literal(v, comment)
	e.fixups = append(e.fixups, fixup{at: len(e.insts), target: i, kind: fixLiteral})
	e.emit(0x58000000 | uint32(rt))
}

func (e *emitter) ldur(rt, rn Reg, off int) {
	if off < -256 || off > 255 {
		e.addImm(IP1, rn, off+HeapObjectTag)
		e.emit(0xF8400000 | uint32(-HeapObjectTag&0x1FF)<<12 | uint32(IP1)<<5 | uint32(rt))
		return
	}
	e.emit(0xF8400000 | uint32(off&0x1FF)<<12 | uint32(rn)<<5 | uint32(rt))
}

func (e *emitter) stur(rt, rn Reg, off int) {
	if off < -256 || off > 255 {
		e.addImm(IP1, rn, off+HeapObjectTag)
		e.emit(0xF8000000 | uint32(-HeapObjectTag&0x1FF)<<12 | uint32(IP1)<<5 | uint32(rt))
		return
	}
	e.emit(0xF8000000 | uint32(off&0x1FF)<<12 | uint32(rn)<<5 | uint32(rt))
}

// fieldLoad loads the tagged word at byte offset off of the object in rn.
func (e *emitter) fieldLoad(rt, rn Reg, off int) { e.ldur(rt, rn, off-HeapObjectTag) }

// fieldStore stores rt at byte offset off of the object in rn.
func (e *emitter) fieldStore(rt, rn Reg, off int) { e.stur(rt, rn, off-HeapObjectTag) }

func (e *emitter) lduD(dt, rn Reg, off int) {
	e.emit(0xFC400000 | uint32((off-HeapObjectTag)&0x1FF)<<12 | uint32(rn)<<5 | uint32(dt))
}

func (e *emitter) stuD(dt, rn Reg, off int) {
	e.emit(0xFC000000 | uint32((off-HeapObjectTag)&0x1FF)<<12 | uint32(rn)<<5 | uint32(dt))
}

func (e *emitter) addImm(rd, rn Reg, imm int) {
	if imm < 0 || imm > 4095 {
		e.fail("add immediate %d out of range", imm)
		return
	}
	e.emit(0x91000000 | uint32(imm)<<10 | uint32(rn)<<5 | uint32(rd))
}

func (e *emitter) subImm(rd, rn Reg, imm int) {
	if imm < 0 || imm > 4095 {
		e.fail("sub immediate %d out of range", imm)
		return
	}
	e.emit(0xD1000000 | uint32(imm)<<10 | uint32(rn)<<5 | uint32(rd))
}

// addShifted emits rd = rn + (rm << shift).
func (e *emitter) addShifted(rd, rn, rm Reg, shift uint32) {
	e.emit(0x8B000000 | uint32(rm)<<16 | (shift&63)<<10 | uint32(rn)<<5 | uint32(rd))
}

func (e *emitter) mov(rd, rm Reg) { e.emit(0xAA0003E0 | uint32(rm)<<16 | uint32(rd)) }

func (e *emitter) movz(rd Reg, imm uint16) { e.emit(0xD2800000 | uint32(imm)<<5 | uint32(rd)) }

func (e *emitter) cmp(rn, rm Reg) { e.emit(0xEB00001F | uint32(rm)<<16 | uint32(rn)<<5) }

func (e *emitter) asr1(rd, rn Reg) { e.emit(0x9341FC00 | uint32(rn)<<5 | uint32(rd)) }

func (e *emitter) scvtf(dd, rn Reg) { e.emit(0x9E620000 | uint32(rn)<<5 | uint32(dd)) }

func (e *emitter) blr(rn Reg) { e.emit(0xD63F0000 | uint32(rn)<<5) }

func (e *emitter) br(rn Reg) { e.emit(0xD61F0000 | uint32(rn)<<5) }

func (e *emitter) ret() { e.emit(0xD65F03C0) }

func (e *emitter) pushFrame() { e.emit(0xA9BF7BFD) }

func (e *emitter) popFrame() { e.emit(0xA8C17BFD) }

func (e *emitter) b(l label) {
	e.fixups = append(e.fixups, fixup{at: len(e.insts), target: int(l), kind: fixBranch26})
	e.emit(0x14000000)
}

func (e *emitter) bcond(c Cond, l label) {
	e.fixups = append(e.fixups, fixup{at: len(e.insts), target: int(l), kind: fixBranch19})
	e.emit(0x54000000 | uint32(c))
}

func (e *emitter) cbz(rt Reg, l label) {
	e.fixups = append(e.fixups, fixup{at: len(e.insts), target: int(l), kind: fixBranch19})
	e.emit(0xB4000000 | uint32(rt))
}

func (e *emitter) cbnz(rt Reg, l label) {
	e.fixups = append(e.fixups, fixup{at: len(e.insts), target: int(l), kind: fixBranch19})
	e.emit(0xB5000000 | uint32(rt))
}

// tbz branches when bit of rt is zero.
func (e *emitter) tbz(rt Reg, bit uint32, l label) {
	e.fixups = append(e.fixups, fixup{at: len(e.insts), target: int(l), kind: fixBranch14})
	e.emit(0x36000000 | (bit>>5)<<31 | (bit&31)<<19 | uint32(rt))
}

// tbnz branches when bit of rt is set.
func (e *emitter) tbnz(rt Reg, bit uint32, l label) {
	e.fixups = append(e.fixups, fixup{at: len(e.insts), target: int(l), kind: fixBranch14})
	e.emit(0x37000000 | (bit>>5)<<31 | (bit&31)<<19 | uint32(rt))
}

// finish resolves branches and literal loads.
func (e *emitter) finish(name string) (*Code, error) {
	if e.err != nil {
		return nil, e.err
	}
	c := &Code{Name: name, Insts: e.insts, Literals: e.literals}
	base := c.literalBase()
	for _, f := range e.fixups {
		var delta int
		if f.kind == fixLiteral {
			delta = (base + 8*f.target - 4*f.at) / 4
		} else {
			pos := e.labels[f.target]
			if pos < 0 {
				return nil, fmt.Errorf("%s: unbound label %d", name, f.target)
			}
			delta = pos - f.at
		}
		w := c.Insts[f.at]
		switch f.kind {
		case fixBranch26:
			w |= uint32(delta) & 0x3FFFFFF
		case fixBranch19, fixLiteral:
			if delta < -(1<<18) || delta >= 1<<18 {
				return nil, fmt.Errorf("%s: branch out of range", name)
			}
			w |= (uint32(delta) & 0x7FFFF) << 5
		case fixBranch14:
			if delta < -(1<<13) || delta >= 1<<13 {
				return nil, fmt.Errorf("%s: test branch out of range", name)
			}
			w |= (uint32(delta) & 0x3FFF) << 5
		}
		c.Insts[f.at] = w
	}
	return c, nil
}
