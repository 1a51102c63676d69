package build

import (
	"bytes"
	"debug/elf"
	"fmt"
	"os"

	"github.com/pkgforge/sbuild/internal/xerrs"
)

// Kind is the result of classifying a build artifact (§4.B "Classification").
type Kind int

const (
	KindUnknown Kind = iota
	KindAppImage
	KindFlatImage
	KindDynamic
	KindStatic
)

func (k Kind) String() string {
	switch k {
	case KindAppImage:
		return "AppImage"
	case KindFlatImage:
		return "FlatImage"
	case KindDynamic:
		return "Dynamic"
	case KindStatic:
		return "Static"
	default:
		return "Unknown"
	}
}

// appimageMarker is the AppImage type-2 marker, "AI\x02", at bytes [8..11).
var appimageMarker = []byte{0x41, 0x49, 0x02}

// flatimageMarker is the marker checked at bytes [4..8) to recognise a
// FlatImage: the four bytes "#FIM". This value is unverified; it is a
// best-effort stand-in for FlatImage's magic bytes (see DESIGN.md).
var flatimageMarker = []byte{0x23, 0x46, 0x49, 0x4d}

// Classify reads the first 12 bytes of path and determines which artifact
// kind it is, per §4.B's classification rules.
func Classify(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, xerrs.Wrap(xerrs.KindBuild, "opening artifact for classification", err)
	}
	defer f.Close()

	header := make([]byte, 12)
	n, err := f.Read(header)
	if err != nil || n < 12 {
		return KindUnknown, xerrs.New(xerrs.KindBuild, "artifact too small to classify")
	}

	isELF := header[0] == 0x7f && header[1] == 'E' && header[2] == 'L' && header[3] == 'F'
	if isELF && bytes.Equal(header[8:11], appimageMarker) {
		return KindAppImage, nil
	}
	if bytes.Equal(header[4:8], flatimageMarker) {
		return KindFlatImage, nil
	}
	if isELF {
		return classifyELF(path)
	}
	return KindUnknown, xerrs.New(xerrs.KindBuild, fmt.Sprintf("%s is not a recognized artifact format", path))
}

// classifyELF distinguishes a dynamically-linked ELF (has a PT_INTERP
// program header) from a statically-linked one.
func classifyELF(path string) (Kind, error) {
	f, err := elf.Open(path)
	if err != nil {
		return KindUnknown, xerrs.Wrap(xerrs.KindBuild, "parsing ELF program headers", err)
	}
	defer f.Close()
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			return KindDynamic, nil
		}
	}
	return KindStatic, nil
}
