package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassemble(t *testing.T) {
	inner := NewBuilder("helper", 1)
	inner.Local("x")
	inner.Emit(OpReturn, 2)

	b := NewBuilder("main", 0).Line(3)
	start := b.Offset()
	b.Emit(OpLoadConst, 2, b.AddConstant(NewString("oops")))
	b.Emit(OpGetProp, 3, 2, b.Name("length"))
	b.Emit(OpClosure, 4, b.Function(inner.Build()))
	b.Emit(OpThrow, 2)
	end := b.Offset()
	b.Line(4).Emit(OpJump, start)
	handler := b.Offset()
	b.Emit(OpReturn, 5)
	b.Handler(start, end, handler, 5)
	code := b.Build()

	out := code.Disassemble()
	assert.True(t, strings.HasPrefix(out, "== main (params=0, registers=6) ==\n"), out)
	assert.Regexp(t, `0000\s+3 OpLoadConst\s+R2, K0 \("oops"\)`, out)
	assert.Regexp(t, `OpGetProp\s+R3, R2, N0 \('length'\)`, out)
	assert.Regexp(t, `OpClosure\s+R4, F0 <helper>`, out)
	assert.Regexp(t, `\s+4 OpJump\s+-\d+ \(to 0000\)`, out)
	assert.Contains(t, out, "Handler 0: TryStart=0, TryEnd=15, HandlerPC=18, CatchReg=R5")
	assert.Contains(t, out, "== helper (params=1, registers=3) ==")
	assert.Equal(t, 4, code.GetLine(end))
	assert.Equal(t, 0, code.GetLine(len(code.Code)))
}

func TestDisassembleDamagedCode(t *testing.T) {
	code := &Code{Name: "bad", Code: []byte{byte(opCount) + 1, byte(OpLoadConst), 2}, Lines: make([]int, 3), Registers: 3}
	out := code.Disassemble()
	assert.Contains(t, out, "UnknownOpcode")
	assert.Contains(t, out, "OpLoadConst (truncated)")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		code    *Code
		wantErr string
	}{
		{"invalid opcode", &Code{Code: []byte{byte(opCount)}, Registers: 2}, "invalid opcode"},
		{"truncated", &Code{Code: []byte{byte(OpMove), 2}, Registers: 4}, "truncated OpMove"},
		{"register", &Code{Code: []byte{byte(OpLoadUndefined), 9}, Registers: 4}, "register R9 out of range"},
		{"constant", &Code{Code: []byte{byte(OpLoadConst), 2, 0, 1}, Registers: 4, Constants: []Value{Null}}, "constant 1 out of range"},
		{"name", &Code{Code: []byte{byte(OpGetGlobal), 2, 0, 0}, Registers: 4}, "name 0 out of range"},
		{"function", &Code{Code: []byte{byte(OpClosure), 2, 0, 3}, Registers: 4}, "function 3 out of range"},
		{"jump", &Code{Code: []byte{byte(OpJump), 0, 9}, Registers: 2}, "jump target 12 out of range"},
		{"params", &Code{Params: 3, Registers: 3}, "3 registers cannot hold 3 params"},
		{"too many registers", &Code{Registers: 300}, "too many registers"},
		{"nested", &Code{Registers: 2, Functions: []*Code{{Name: "inner", Code: []byte{byte(opCount)}, Registers: 2}}}, "inner: invalid opcode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.code.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, addFunction().Validate())
	ok := &Code{Code: []byte{byte(OpLoadUndefined), NoRegister}, Registers: 2}
	assert.NoError(t, ok.Validate())
}

func TestBuilder(t *testing.T) {
	b := NewBuilder("f", 2)
	assert.Equal(t, 2, b.Local("a"))
	assert.Equal(t, 3, b.Local("b"))
	assert.Equal(t, b.AddConstant(IntegerValue(1)), b.AddConstant(NumberValue(1)))
	assert.NotEqual(t, b.AddConstant(IntegerValue(1)), b.AddConstant(NewString("1")))
	assert.NotEqual(t, b.AddConstant(NumberValue(0)), b.AddConstant(NumberValue(negZero())))
	assert.Equal(t, b.Name("x"), b.Name("x"))

	b.Registers(10)
	code := b.Build()
	assert.Equal(t, 10, code.Registers)
	r, ok := code.localRegister("b")
	assert.True(t, ok)
	assert.Equal(t, 3, r)

	assert.Panics(t, func() { b.Emit(OpMove, 1) })
}

func TestPatchJump(t *testing.T) {
	b := NewBuilder("f", 0)
	j := b.Emit(OpJumpIfTrue, 2, 0)
	b.Emit(OpNop)
	b.Emit(OpNop)
	target := b.Offset()
	b.PatchJump(j, target)
	b.Emit(OpReturnUndefined)
	code := b.Build()

	require.NoError(t, code.Validate())
	assert.Equal(t, 2, int(int16(code.u16(j+2))))
}

func negZero() float64 {
	z := 0.0
	return -z
}
