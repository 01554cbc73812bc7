package image

import (
	"math"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooga/esvm/pkg/config"
	"github.com/nooga/esvm/pkg/vm"
)

// guarded returns double(21), or "caught" if the call or the property read
// after it throws.
func guarded() *vm.Code {
	db := vm.NewBuilder("double", 1).Line(1).Strict()
	x := db.Local("x")
	db.Emit(vm.OpAdd, 3, x, x)
	db.Emit(vm.OpReturn, 3)

	b := vm.NewBuilder("main", 0).Line(2)
	b.Emit(vm.OpLoadConst, 2, b.AddConstant(vm.NumberValue(math.Copysign(0, -1))))
	b.Emit(vm.OpClosure, 4, b.Function(db.Build()))
	b.Emit(vm.OpLoadUndefined, 3)
	b.Emit(vm.OpLoadConst, 5, b.AddConstant(vm.IntegerValue(21)))
	start := b.Offset()
	b.Line(3).Emit(vm.OpCall, 6, 3, 1)
	b.Emit(vm.OpGetProp, 7, 6, b.Name("missing"))
	end := b.Offset()
	b.Emit(vm.OpReturn, 6)
	handler := b.Offset()
	b.Emit(vm.OpLoadConst, 8, b.AddConstant(vm.NewString("caught")))
	b.Emit(vm.OpReturn, 8)
	b.Handler(start, end, handler, 9)
	b.AddConstant(vm.True)
	return b.Build()
}

func run(t *testing.T, code *vm.Code) vm.Value {
	t.Helper()
	rt, err := vm.NewRuntime(config.Default().Engine)
	require.NoError(t, err)
	c := rt.NewContext()
	defer c.Destroy()
	require.NoError(t, c.Setup(code))
	_, err = c.Run()
	require.NoError(t, err)
	require.Equal(t, vm.StateReturned, c.State())
	return c.ReturnValue()
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	code := guarded()

	img, err := New("guarded.js", code)
	require.NoError(t, err)
	require.NoError(t, Save(fs, "/out/guarded.cbor", img))

	loaded, err := Load(fs, "/out/guarded.cbor")
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, loaded.Version)
	assert.Equal(t, "guarded.js", loaded.Source)

	back, err := loaded.Code()
	require.NoError(t, err)
	assert.Equal(t, code.Disassemble(), back.Disassemble())
	assert.Equal(t, code.Handlers, back.Handlers)
	assert.True(t, back.Functions[0].Strict)
	assert.True(t, math.Signbit(back.Constants[0].AsNumber()), "negative zero survives")
	assert.True(t, back.Constants[len(back.Constants)-1].Is(vm.True))

	assert.Equal(t, vm.IntegerValue(42), run(t, code))
	assert.Equal(t, vm.IntegerValue(42), run(t, back))
}

func TestMarshalIsDeterministic(t *testing.T) {
	img, err := New("", guarded())
	require.NoError(t, err)
	a, err := Marshal(img)
	require.NoError(t, err)
	b, err := Marshal(img)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestObjectConstantsCannotBeStored(t *testing.T) {
	rt, err := vm.NewRuntime(config.Default().Engine)
	require.NoError(t, err)
	b := vm.NewBuilder("holder", 0)
	b.Emit(vm.OpLoadConst, 2, b.AddConstant(vm.ObjectValue(rt.Realm().NewObject())))

	_, err = New("", b.Build())
	assert.ErrorContains(t, err, "holder constant 0: object values cannot be stored")
}

func TestUnmarshalErrors(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0x00})
	assert.ErrorContains(t, err, "image: unmarshal")

	data, err := Marshal(&Image{Version: FormatVersion + 1})
	require.NoError(t, err)
	_, err = Unmarshal(data)
	assert.ErrorContains(t, err, "unsupported version 2")

	_, err = Load(afero.NewMemMapFs(), "absent.cbor")
	assert.Error(t, err)
}

func TestCodeValidates(t *testing.T) {
	img := &Image{
		Version: FormatVersion,
		Program: CodeRecord{Name: "broken", Code: []byte{byte(vm.OpMove), 2}, Registers: 4},
	}
	_, err := img.Code()
	assert.ErrorContains(t, err, "truncated OpMove")

	rec := img.Program.ToCode()
	assert.Len(t, rec.Lines, len(rec.Code), "missing line info is padded")
}

func TestConstRecordValue(t *testing.T) {
	assert.True(t, ConstRecord{Kind: ConstNull}.Value().IsNull())
	assert.True(t, ConstRecord{Kind: ConstKind(99)}.Value().IsUndefined())
	assert.Equal(t, vm.NewString("s"), ConstRecord{Kind: ConstString, String: "s"}.Value())
	assert.Equal(t, "const(99)", ConstKind(99).String())
	assert.Equal(t, "number", ConstNumber.String())
}
