// Package image reads and writes program images: CBOR encoded code objects
// handed to the engine by an external compiler.
package image

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"
)

// FormatVersion is the image layout written by this package.
const FormatVersion = 1

// Image is a serialized program.
type Image struct {
	Version int        `cbor:"1,keyasint"`
	Source  string     `cbor:"2,keyasint,omitempty"` // where the program was compiled from
	Program CodeRecord `cbor:"3,keyasint"`
}

// CodeRecord is the serialized form of one code object.
type CodeRecord struct {
	Name        string          `cbor:"1,keyasint"`
	Code        []byte          `cbor:"2,keyasint"`
	Lines       []int           `cbor:"3,keyasint,omitempty"`
	Constants   []ConstRecord   `cbor:"4,keyasint,omitempty"`
	Names       []string        `cbor:"5,keyasint,omitempty"`
	Functions   []CodeRecord    `cbor:"6,keyasint,omitempty"`
	Handlers    []HandlerRecord `cbor:"7,keyasint,omitempty"`
	Registers   int             `cbor:"8,keyasint"`
	Params      int             `cbor:"9,keyasint,omitempty"`
	Locals      []string        `cbor:"10,keyasint,omitempty"`
	Strict      bool            `cbor:"11,keyasint,omitempty"`
	NativeEntry bool            `cbor:"12,keyasint,omitempty"`
}

// ConstKind tags a constant pool entry.
type ConstKind uint8

const (
	ConstUndefined ConstKind = iota
	ConstNull
	ConstBoolean
	ConstNumber
	ConstString
)

func (k ConstKind) String() string {
	switch k {
	case ConstUndefined:
		return "undefined"
	case ConstNull:
		return "null"
	case ConstBoolean:
		return "boolean"
	case ConstNumber:
		return "number"
	case ConstString:
		return "string"
	}
	return fmt.Sprintf("const(%d)", k)
}

// ConstRecord is a primitive constant.
type ConstRecord struct {
	Kind   ConstKind `cbor:"1,keyasint"`
	Bool   bool      `cbor:"2,keyasint,omitempty"`
	Number float64   `cbor:"3,keyasint"`
	String string    `cbor:"4,keyasint,omitempty"`
}

// HandlerRecord is an exception table entry.
type HandlerRecord struct {
	TryStart  int `cbor:"1,keyasint"`
	TryEnd    int `cbor:"2,keyasint"`
	HandlerPC int `cbor:"3,keyasint"`
	CatchReg  int `cbor:"4,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Marshal serializes img to CBOR bytes.
func Marshal(img *Image) ([]byte, error) {
	return encMode.Marshal(img)
}

// Unmarshal deserializes an image and checks its version.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Version != FormatVersion {
		return nil, fmt.Errorf("image: unsupported version %d (want %d)", img.Version, FormatVersion)
	}
	return &img, nil
}

// Save writes img to path on fs.
func Save(fs afero.Fs, path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return fmt.Errorf("image: marshal %s: %w", path, err)
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

// Load reads the image at path on fs.
func Load(fs afero.Fs, path string) (*Image, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	img, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
