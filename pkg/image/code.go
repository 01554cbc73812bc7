package image

import (
	"fmt"

	"github.com/nooga/esvm/pkg/vm"
)

// New wraps program in an image of the current format.
func New(source string, program *vm.Code) (*Image, error) {
	rec, err := FromCode(program)
	if err != nil {
		return nil, err
	}
	return &Image{Version: FormatVersion, Source: source, Program: rec}, nil
}

// Code rebuilds and validates the program's code object.
func (img *Image) Code() (*vm.Code, error) {
	code := img.Program.ToCode()
	if err := code.Validate(); err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return code, nil
}

// FromCode converts a code object and its nested functions. Only
// primitive constants can be stored.
func FromCode(code *vm.Code) (CodeRecord, error) {
	rec := CodeRecord{
		Name:        code.Name,
		Code:        append([]byte(nil), code.Code...),
		Lines:       append([]int(nil), code.Lines...),
		Names:       append([]string(nil), code.Names...),
		Registers:   code.Registers,
		Params:      code.Params,
		Locals:      append([]string(nil), code.Locals...),
		Strict:      code.Strict,
		NativeEntry: code.NativeEntry,
	}
	for i, k := range code.Constants {
		c, err := fromValue(k)
		if err != nil {
			return CodeRecord{}, fmt.Errorf("image: %s constant %d: %w", code.Name, i, err)
		}
		rec.Constants = append(rec.Constants, c)
	}
	for _, h := range code.Handlers {
		rec.Handlers = append(rec.Handlers, HandlerRecord(h))
	}
	for _, fn := range code.Functions {
		fr, err := FromCode(fn)
		if err != nil {
			return CodeRecord{}, err
		}
		rec.Functions = append(rec.Functions, fr)
	}
	return rec, nil
}

func fromValue(v vm.Value) (ConstRecord, error) {
	switch v.Type() {
	case vm.TypeUndefined:
		return ConstRecord{Kind: ConstUndefined}, nil
	case vm.TypeNull:
		return ConstRecord{Kind: ConstNull}, nil
	case vm.TypeBoolean:
		return ConstRecord{Kind: ConstBoolean, Bool: v.AsBoolean()}, nil
	case vm.TypeNumber:
		return ConstRecord{Kind: ConstNumber, Number: v.AsNumber()}, nil
	case vm.TypeString:
		return ConstRecord{Kind: ConstString, String: v.AsString()}, nil
	}
	return ConstRecord{}, fmt.Errorf("%s values cannot be stored", v.Type())
}

// ToCode rebuilds the code object. The result is not validated.
func (rec CodeRecord) ToCode() *vm.Code {
	code := &vm.Code{
		Name:        rec.Name,
		Code:        rec.Code,
		Lines:       rec.Lines,
		Names:       rec.Names,
		Registers:   rec.Registers,
		Params:      rec.Params,
		Locals:      rec.Locals,
		Strict:      rec.Strict,
		NativeEntry: rec.NativeEntry,
	}
	if len(code.Lines) < len(code.Code) {
		lines := make([]int, len(code.Code))
		copy(lines, code.Lines)
		code.Lines = lines
	}
	for _, c := range rec.Constants {
		code.Constants = append(code.Constants, c.Value())
	}
	for _, h := range rec.Handlers {
		code.Handlers = append(code.Handlers, vm.ExceptionHandler(h))
	}
	for _, fr := range rec.Functions {
		code.Functions = append(code.Functions, fr.ToCode())
	}
	return code
}

// Value returns the constant as a script value. Unknown kinds read as
// undefined.
func (c ConstRecord) Value() vm.Value {
	switch c.Kind {
	case ConstNull:
		return vm.Null
	case ConstBoolean:
		return vm.BooleanValue(c.Bool)
	case ConstNumber:
		return vm.NumberValue(c.Number)
	case ConstString:
		return vm.NewString(c.String)
	}
	return vm.Undefined
}
