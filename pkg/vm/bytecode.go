package vm

import (
	"fmt"
	"strings"
)

// OpCode defines the type for bytecode instructions.
type OpCode uint8

// Register machine opcodes. Operand letters: r register (1 byte),
// c constant index, n name index, f function index (2 bytes each),
// j signed jump offset relative to the end of the instruction (2 bytes),
// b count byte.
const (
	OpNop OpCode = iota // -

	OpLoadConst     // Rx ConstIdx: Rx = Constants[ConstIdx]
	OpLoadUndefined // Rx
	OpLoadNull      // Rx
	OpLoadTrue      // Rx
	OpLoadFalse     // Rx
	OpMove          // Rx Ry: Rx = Ry

	OpAdd // Rx Ry Rz: Rx = Ry + Rz
	OpSub
	OpMul
	OpDiv
	OpMod

	OpLess // Rx Ry Rz: Rx = Ry < Rz
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpEqual
	OpNotEqual
	OpStrictEqual
	OpStrictNotEqual

	OpNot    // Rx Ry: Rx = !Ry
	OpNegate // Rx Ry: Rx = -Ry
	OpTypeof // Rx Ry: Rx = typeof Ry

	OpJump        // Off
	OpJumpIfFalse // Rc Off
	OpJumpIfTrue  // Rc Off

	OpNewObject // Rx: Rx = {}
	OpNewArray  // Rx Rstart Count: Rx = [Rstart .. Rstart+Count)

	OpGetProp    // Rx Robj NameIdx
	OpPutProp    // Robj NameIdx Rv
	OpDeleteProp // Rx Robj NameIdx
	OpGetIndex   // Rx Robj Rkey
	OpPutIndex   // Robj Rkey Rv
	OpDeleteIndex
	OpIn // Rx Rkey Robj

	OpGetGlobal // Rx NameIdx
	OpPutGlobal // NameIdx Rv
	OpGetScoped // Rx NameIdx: scope chain, then global object
	OpPutScoped // NameIdx Rv

	OpClosure   // Rx FuncIdx
	OpCall      // Rx Rbase Argc: Rbase = this, Rbase+1 = callee, args follow
	OpConstruct // Rx Rbase Argc
	OpEval      // Rx FuncIdx Rthis: Rthis == NoRegister shares the current window

	OpReturn          // Rx
	OpReturnUndefined // -
	OpThrow           // Rx

	OpLoadThis      // Rx
	OpLoadArguments // Rx
	OpSetProto      // Rx Robj Rproto: Rx = whether the link changed
	OpOwnKeys       // Rx Robj: Rx = array of own enumerable names

	OpCheckpoint // -: may suspend when the embedder asked for it
	OpExit       // -: ends the run; installed by Setup

	opCount
)

// NoRegister marks an absent register operand.
const NoRegister = 0xff

type opInfo struct {
	name     string
	operands string
}

var opTable = [opCount]opInfo{
	OpNop:             {"OpNop", ""},
	OpLoadConst:       {"OpLoadConst", "rc"},
	OpLoadUndefined:   {"OpLoadUndefined", "r"},
	OpLoadNull:        {"OpLoadNull", "r"},
	OpLoadTrue:        {"OpLoadTrue", "r"},
	OpLoadFalse:       {"OpLoadFalse", "r"},
	OpMove:            {"OpMove", "rr"},
	OpAdd:             {"OpAdd", "rrr"},
	OpSub:             {"OpSub", "rrr"},
	OpMul:             {"OpMul", "rrr"},
	OpDiv:             {"OpDiv", "rrr"},
	OpMod:             {"OpMod", "rrr"},
	OpLess:            {"OpLess", "rrr"},
	OpLessEqual:       {"OpLessEqual", "rrr"},
	OpGreater:         {"OpGreater", "rrr"},
	OpGreaterEqual:    {"OpGreaterEqual", "rrr"},
	OpEqual:           {"OpEqual", "rrr"},
	OpNotEqual:        {"OpNotEqual", "rrr"},
	OpStrictEqual:     {"OpStrictEqual", "rrr"},
	OpStrictNotEqual:  {"OpStrictNotEqual", "rrr"},
	OpNot:             {"OpNot", "rr"},
	OpNegate:          {"OpNegate", "rr"},
	OpTypeof:          {"OpTypeof", "rr"},
	OpJump:            {"OpJump", "j"},
	OpJumpIfFalse:     {"OpJumpIfFalse", "rj"},
	OpJumpIfTrue:      {"OpJumpIfTrue", "rj"},
	OpNewObject:       {"OpNewObject", "r"},
	OpNewArray:        {"OpNewArray", "rrb"},
	OpGetProp:         {"OpGetProp", "rrn"},
	OpPutProp:         {"OpPutProp", "rnr"},
	OpDeleteProp:      {"OpDeleteProp", "rrn"},
	OpGetIndex:        {"OpGetIndex", "rrr"},
	OpPutIndex:        {"OpPutIndex", "rrr"},
	OpDeleteIndex:     {"OpDeleteIndex", "rrr"},
	OpIn:              {"OpIn", "rrr"},
	OpGetGlobal:       {"OpGetGlobal", "rn"},
	OpPutGlobal:       {"OpPutGlobal", "nr"},
	OpGetScoped:       {"OpGetScoped", "rn"},
	OpPutScoped:       {"OpPutScoped", "nr"},
	OpClosure:         {"OpClosure", "rf"},
	OpCall:            {"OpCall", "rrb"},
	OpConstruct:       {"OpConstruct", "rrb"},
	OpEval:            {"OpEval", "rfr"},
	OpReturn:          {"OpReturn", "r"},
	OpReturnUndefined: {"OpReturnUndefined", ""},
	OpThrow:           {"OpThrow", "r"},
	OpLoadThis:        {"OpLoadThis", "r"},
	OpLoadArguments:   {"OpLoadArguments", "r"},
	OpSetProto:        {"OpSetProto", "rrr"},
	OpOwnKeys:         {"OpOwnKeys", "rr"},
	OpCheckpoint:      {"OpCheckpoint", ""},
	OpExit:            {"OpExit", ""},
}

func (op OpCode) String() string {
	if op < opCount {
		return opTable[op].name
	}
	return fmt.Sprintf("UnknownOpcode(%d)", op)
}

// Width returns the encoded size of the instruction in bytes.
func (op OpCode) Width() int {
	if op >= opCount {
		return 1
	}
	n := 1
	for _, k := range opTable[op].operands {
		switch k {
		case 'r', 'b':
			n++
		default:
			n += 2
		}
	}
	return n
}

// ExceptionHandler represents an entry in the exception table
type ExceptionHandler struct {
	TryStart  int // PC where try block starts (inclusive)
	TryEnd    int // PC where try block ends (exclusive)
	HandlerPC int // Where to jump when exception caught
	CatchReg  int // Register to store exception (NoRegister if not needed)
}

// Code is a compiled function or program: bytecode, constant pool, nested
// functions and the static exception table.
type Code struct {
	Name      string
	Code      []byte
	Lines     []int // line of the instruction starting at each byte
	Constants []Value
	Names     []string
	Functions []*Code
	Handlers  []ExceptionHandler

	// Registers is the window size: R0 = this, R1 = callee, R2.. params,
	// then locals.
	Registers int
	Params    int
	// Locals names registers R2, R3, ... for the variables object.
	Locals []string
	Strict bool
	// NativeEntry marks code a native dispatcher may run instead of the
	// interpreter.
	NativeEntry bool

	keys   []PropertyKey
	caches []*PropertyCache
}

// GetLine returns the source line number of the instruction at offset.
func (code *Code) GetLine(offset int) int {
	if offset < 0 || offset >= len(code.Lines) {
		return 0
	}
	return code.Lines[offset]
}

// key returns the canonical property key of name index i.
func (code *Code) key(i int) PropertyKey {
	if code.keys == nil {
		code.keys = make([]PropertyKey, len(code.Names))
		for j, n := range code.Names {
			code.keys[j] = NameKey(n)
		}
	}
	return code.keys[i]
}

// localRegister returns the register holding a named local.
func (code *Code) localRegister(name string) (int, bool) {
	for i, n := range code.Locals {
		if n == name {
			return i + 2, true
		}
	}
	return 0, false
}

// Validate checks that the bytecode decodes and its operands are in range.
func (code *Code) Validate() error {
	for off := 0; off < len(code.Code); {
		op := OpCode(code.Code[off])
		if op >= opCount {
			return fmt.Errorf("%s: invalid opcode %d at %d", code.Name, op, off)
		}
		w := op.Width()
		if off+w > len(code.Code) {
			return fmt.Errorf("%s: truncated %s at %d", code.Name, op, off)
		}
		pos := off + 1
		for _, k := range opTable[op].operands {
			switch k {
			case 'r':
				r := int(code.Code[pos])
				if r != NoRegister && r >= code.Registers {
					return fmt.Errorf("%s: register R%d out of range at %d", code.Name, r, off)
				}
				pos++
			case 'b':
				pos++
			case 'c':
				if int(code.u16(pos)) >= len(code.Constants) {
					return fmt.Errorf("%s: constant %d out of range at %d", code.Name, code.u16(pos), off)
				}
				pos += 2
			case 'n':
				if int(code.u16(pos)) >= len(code.Names) {
					return fmt.Errorf("%s: name %d out of range at %d", code.Name, code.u16(pos), off)
				}
				pos += 2
			case 'f':
				if int(code.u16(pos)) >= len(code.Functions) {
					return fmt.Errorf("%s: function %d out of range at %d", code.Name, code.u16(pos), off)
				}
				pos += 2
			case 'j':
				target := off + w + int(int16(code.u16(pos)))
				if target < 0 || target > len(code.Code) {
					return fmt.Errorf("%s: jump target %d out of range at %d", code.Name, target, off)
				}
				pos += 2
			}
		}
		off += w
	}
	if code.Registers < 2+code.Params {
		return fmt.Errorf("%s: %d registers cannot hold %d params", code.Name, code.Registers, code.Params)
	}
	if code.Registers > NoRegister {
		return fmt.Errorf("%s: too many registers (%d)", code.Name, code.Registers)
	}
	for _, fn := range code.Functions {
		if err := fn.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (code *Code) u16(pos int) uint16 {
	return uint16(code.Code[pos])<<8 | uint16(code.Code[pos+1])
}

// --- Builder ---

// Builder assembles a Code object.
type Builder struct {
	code *Code
	line int
}

// NewBuilder starts a code object with the given parameter count.
func NewBuilder(name string, params int) *Builder {
	return &Builder{code: &Code{Name: name, Params: params, Registers: 2 + params}}
}

// Line sets the source line recorded for subsequent instructions.
func (b *Builder) Line(line int) *Builder {
	b.line = line
	return b
}

// Strict marks the code as strict mode.
func (b *Builder) Strict() *Builder {
	b.code.Strict = true
	return b
}

// NativeEntry marks the code as eligible for a native dispatcher.
func (b *Builder) NativeEntry() *Builder {
	b.code.NativeEntry = true
	return b
}

// Local names the next register after the already named ones. Params
// should be named first, in order.
func (b *Builder) Local(name string) int {
	b.code.Locals = append(b.code.Locals, name)
	r := len(b.code.Locals) + 1
	b.reserve(r)
	return r
}

// Reserve makes sure registers up to r exist.
func (b *Builder) reserve(r int) {
	if r != NoRegister && r+1 > b.code.Registers {
		b.code.Registers = r + 1
	}
}

// Registers makes the window at least n registers large.
func (b *Builder) Registers(n int) *Builder {
	b.reserve(n - 1)
	return b
}

// AddConstant adds a value to the constant pool and returns its index.
func (b *Builder) AddConstant(v Value) int {
	for i, existing := range b.code.Constants {
		if existing.Is(v) && existing.typ == v.typ {
			return i
		}
	}
	b.code.Constants = append(b.code.Constants, v)
	if len(b.code.Constants) > 0xffff {
		panic("too many constants in one code object")
	}
	return len(b.code.Constants) - 1
}

// Name interns a property or global name.
func (b *Builder) Name(name string) int {
	for i, n := range b.code.Names {
		if n == name {
			return i
		}
	}
	b.code.Names = append(b.code.Names, name)
	return len(b.code.Names) - 1
}

// Function adds a nested code object.
func (b *Builder) Function(fn *Code) int {
	b.code.Functions = append(b.code.Functions, fn)
	return len(b.code.Functions) - 1
}

// Offset returns the offset of the next instruction.
func (b *Builder) Offset() int { return len(b.code.Code) }

// Emit writes an instruction and returns its offset. Jump operands are
// absolute targets; Emit converts them to relative offsets.
func (b *Builder) Emit(op OpCode, operands ...int) int {
	spec := opTable[op].operands
	if len(operands) != len(spec) {
		panic(fmt.Sprintf("%s takes %d operands, got %d", op, len(spec), len(operands)))
	}
	at := len(b.code.Code)
	end := at + op.Width()
	b.write(byte(op))
	for i, k := range spec {
		v := operands[i]
		switch k {
		case 'r':
			b.reserve(v)
			b.write(byte(v))
		case 'b':
			b.write(byte(v))
		case 'j':
			b.write16(uint16(int16(v - end)))
		default:
			b.write16(uint16(v))
		}
	}
	return at
}

// PatchJump points the jump at offset to target.
func (b *Builder) PatchJump(at, target int) {
	op := OpCode(b.code.Code[at])
	pos := at + 1
	if op != OpJump {
		pos++
	}
	rel := uint16(int16(target - (at + op.Width())))
	b.code.Code[pos] = byte(rel >> 8)
	b.code.Code[pos+1] = byte(rel)
}

// Handler adds an exception table entry.
func (b *Builder) Handler(tryStart, tryEnd, handlerPC, catchReg int) {
	b.reserve(catchReg)
	b.code.Handlers = append(b.code.Handlers, ExceptionHandler{TryStart: tryStart, TryEnd: tryEnd, HandlerPC: handlerPC, CatchReg: catchReg})
}

func (b *Builder) write(x byte) {
	b.code.Code = append(b.code.Code, x)
	b.code.Lines = append(b.code.Lines, b.line)
}

func (b *Builder) write16(v uint16) {
	b.write(byte(v >> 8))
	b.write(byte(v & 0xff))
}

// Build returns the finished code object.
func (b *Builder) Build() *Code {
	return b.code
}

// --- Disassembly ---

// Disassemble renders the code object and its nested functions.
func (code *Code) Disassemble() string {
	var builder strings.Builder
	code.disassemble(&builder)
	return builder.String()
}

func (code *Code) disassemble(builder *strings.Builder) {
	fmt.Fprintf(builder, "== %s (params=%d, registers=%d) ==\n", code.Name, code.Params, code.Registers)
	for offset := 0; offset < len(code.Code); {
		offset = code.disassembleInstruction(builder, offset)
	}
	if len(code.Handlers) > 0 {
		builder.WriteString("-- exception table --\n")
		for i, h := range code.Handlers {
			fmt.Fprintf(builder, "Handler %d: TryStart=%d, TryEnd=%d, HandlerPC=%d, CatchReg=%s\n",
				i, h.TryStart, h.TryEnd, h.HandlerPC, regName(h.CatchReg))
		}
	}
	for _, fn := range code.Functions {
		builder.WriteString("\n")
		fn.disassemble(builder)
	}
}

func regName(r int) string {
	if r == NoRegister || r < 0 {
		return "-"
	}
	return fmt.Sprintf("R%d", r)
}

func (code *Code) disassembleInstruction(builder *strings.Builder, offset int) int {
	fmt.Fprintf(builder, "%04d %4d ", offset, code.GetLine(offset))
	op := OpCode(code.Code[offset])
	if op >= opCount {
		fmt.Fprintf(builder, "%s\n", op)
		return offset + 1
	}
	w := op.Width()
	if offset+w > len(code.Code) {
		fmt.Fprintf(builder, "%s (truncated)\n", op)
		return len(code.Code)
	}
	fmt.Fprintf(builder, "%-18s", op)
	pos := offset + 1
	var parts []string
	for _, k := range opTable[op].operands {
		switch k {
		case 'r':
			parts = append(parts, regName(int(code.Code[pos])))
			pos++
		case 'b':
			parts = append(parts, fmt.Sprintf("%d", code.Code[pos]))
			pos++
		case 'c':
			idx := int(code.u16(pos))
			parts = append(parts, fmt.Sprintf("K%d (%s)", idx, code.Constants[idx].Inspect()))
			pos += 2
		case 'n':
			idx := int(code.u16(pos))
			parts = append(parts, fmt.Sprintf("N%d ('%s')", idx, code.Names[idx]))
			pos += 2
		case 'f':
			idx := int(code.u16(pos))
			parts = append(parts, fmt.Sprintf("F%d <%s>", idx, code.Functions[idx].Name))
			pos += 2
		case 'j':
			rel := int(int16(code.u16(pos)))
			parts = append(parts, fmt.Sprintf("%d (to %04d)", rel, offset+w+rel))
			pos += 2
		}
	}
	builder.WriteString(strings.TrimRight(" "+strings.Join(parts, ", "), " "))
	builder.WriteString("\n")
	return offset + w
}
