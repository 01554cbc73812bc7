package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nooga/esvm/pkg/image"
	"github.com/nooga/esvm/pkg/vm"
)

func getCmdSample(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "sample output",
		Short: "Write a demonstration program image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := image.New("sample", sampleProgram())
			if err != nil {
				return err
			}
			if err := image.Save(gs.fs, args[0], img); err != nil {
				return err
			}
			fmt.Fprintf(gs.stdout, "wrote %s\n", args[0])
			return nil
		},
	}
}

// sampleProgram builds
//
//	function fib(n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2) }
//	print("fib(20) =", fib(20))
//	try { null.x } catch (e) { print(e.name + ": " + e.message) }
//	return fib(20)
func sampleProgram() *vm.Code {
	return sampleMain(sampleFib())
}

func sampleFib() *vm.Code {
	b := vm.NewBuilder("fib", 1).Line(1)
	n := b.Local("n")
	two := b.AddConstant(vm.IntegerValue(2))
	b.Emit(vm.OpLoadConst, 3, two)
	b.Emit(vm.OpLess, 4, n, 3)
	recurse := b.Emit(vm.OpJumpIfFalse, 4, 0)
	b.Emit(vm.OpReturn, n)
	b.PatchJump(recurse, b.Offset())

	fib := b.Name("fib")
	b.Emit(vm.OpLoadUndefined, 5)
	b.Emit(vm.OpGetGlobal, 6, fib)
	b.Emit(vm.OpLoadConst, 8, b.AddConstant(vm.IntegerValue(1)))
	b.Emit(vm.OpSub, 7, n, 8)
	b.Emit(vm.OpCall, 5, 5, 1)

	b.Emit(vm.OpLoadUndefined, 9)
	b.Emit(vm.OpGetGlobal, 10, fib)
	b.Emit(vm.OpLoadConst, 12, two)
	b.Emit(vm.OpSub, 11, n, 12)
	b.Emit(vm.OpCall, 9, 9, 1)

	b.Emit(vm.OpAdd, 5, 5, 9)
	b.Emit(vm.OpReturn, 5)
	return b.Build()
}

func sampleMain(fibCode *vm.Code) *vm.Code {
	b := vm.NewBuilder("<program>", 0).Line(2)
	printName := b.Name("print")

	b.Emit(vm.OpClosure, 2, b.Function(fibCode))
	b.Emit(vm.OpPutGlobal, b.Name("fib"), 2)

	b.Emit(vm.OpLoadUndefined, 3)
	b.Emit(vm.OpMove, 4, 2)
	b.Emit(vm.OpLoadConst, 5, b.AddConstant(vm.IntegerValue(20)))
	b.Emit(vm.OpCall, 6, 3, 1)

	b.Line(3)
	b.Emit(vm.OpLoadUndefined, 7)
	b.Emit(vm.OpGetGlobal, 8, printName)
	b.Emit(vm.OpLoadConst, 9, b.AddConstant(vm.NewString("fib(20) =")))
	b.Emit(vm.OpMove, 10, 6)
	b.Emit(vm.OpCall, 7, 7, 2)

	b.Line(4)
	tryStart := b.Offset()
	b.Emit(vm.OpLoadNull, 11)
	b.Emit(vm.OpGetProp, 12, 11, b.Name("x"))
	tryEnd := b.Offset()
	skip := b.Emit(vm.OpJump, 0)
	handler := b.Offset()
	b.Emit(vm.OpGetProp, 14, 13, b.Name("name"))
	b.Emit(vm.OpLoadConst, 15, b.AddConstant(vm.NewString(": ")))
	b.Emit(vm.OpAdd, 14, 14, 15)
	b.Emit(vm.OpGetProp, 15, 13, b.Name("message"))
	b.Emit(vm.OpAdd, 18, 14, 15)
	b.Emit(vm.OpLoadUndefined, 16)
	b.Emit(vm.OpGetGlobal, 17, printName)
	b.Emit(vm.OpCall, 16, 16, 1)
	b.PatchJump(skip, b.Offset())
	b.Handler(tryStart, tryEnd, handler, 13)

	b.Line(5)
	b.Emit(vm.OpReturn, 6)
	return b.Build()
}
