package errors

import "fmt"

// Position identifies a point in executing bytecode.
// Line comes from the code object's line table and is 0 when unknown.
type Position struct {
	Function string // Name of the code object, "<program>" for top level
	Line     int    // 1-based source line recorded by the compiler
	Offset   int    // Bytecode offset of the instruction
}

func (p Position) String() string {
	name := p.Function
	if name == "" {
		name = "<anonymous>"
	}
	if p.Line > 0 {
		return fmt.Sprintf("%s:%d", name, p.Line)
	}
	return fmt.Sprintf("%s@%d", name, p.Offset)
}

// IsZero reports whether the position carries no location at all.
func (p Position) IsZero() bool {
	return p.Function == "" && p.Line == 0 && p.Offset == 0
}
