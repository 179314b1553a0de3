package codegen

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// Line is one disassembled instruction or literal pool entry.
type Line struct {
	Offset   int
	Raw      uint64
	Mnemonic string
	Operands string
	Text     string
	Comment  string
}

// Disassemble decodes c's instructions and renders its literal pool.
// Undecodable words are printed as .word directives.
func Disassemble(c *Code) []Line {
	data := c.Bytes()
	base := c.literalBase()
	lines := make([]Line, 0, base/4+len(c.Literals))

	for off := 0; off < base; off += 4 {
		raw := binary.LittleEndian.Uint32(data[off : off+4])
		l := Line{Offset: off, Raw: uint64(raw)}
		inst, err := arm64asm.Decode(data[off : off+4])
		if err != nil {
			l.Mnemonic = ".word"
			l.Operands = fmt.Sprintf("0x%08x", raw)
			l.Text = ".word " + l.Operands
		} else {
			l.Text = inst.String()
			parts := strings.SplitN(l.Text, " ", 2)
			l.Mnemonic = parts[0]
			if len(parts) > 1 {
				l.Operands = parts[1]
			}
			l.Comment = literalComment(c, off, raw)
		}
		lines = append(lines, l)
	}

	for i, lit := range c.Literals {
		off := base + 8*i
		lines = append(lines, Line{
			Offset:   off,
			Raw:      lit.Value,
			Mnemonic: ".quad",
			Operands: fmt.Sprintf("0x%016x", lit.Value),
			Text:     fmt.Sprintf(".quad 0x%016x", lit.Value),
			Comment:  lit.Comment,
		})
	}
	return lines
}

// literalComment names the pool entry read by the PC-relative load at off,
// or returns "" for any other instruction.
func literalComment(c *Code, off int, raw uint32) string {
	if raw&0xFF000000 != 0x58000000 {
		return ""
	}
	imm := int32(raw<<8) >> 13
	target := off + int(imm)*4
	i := (target - c.literalBase()) / 8
	if target < c.literalBase() || i >= len(c.Literals) {
		return ""
	}
	return c.Literals[i].Comment
}

// Listing renders c as text, one line per instruction:
// <offset>  <hex>  <disassembly>  ; <comment>
func Listing(c *Code) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s (%d bytes) ---\n", c.Name, c.Size())
	for _, l := range Disassemble(c) {
		if l.Mnemonic == ".quad" {
			fmt.Fprintf(&b, "0x%04x  %016x  %s", l.Offset, l.Raw, l.Text)
		} else {
			fmt.Fprintf(&b, "0x%04x  %08x  %s", l.Offset, l.Raw, l.Text)
		}
		if l.Comment != "" {
			fmt.Fprintf(&b, "  ; %s", l.Comment)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
