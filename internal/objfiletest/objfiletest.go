// Package objfiletest builds minimal synthetic ELF files for tests that
// need a real binary for internal/objfile (and its callers) to parse,
// without shelling out to a C compiler. Modeled on the teacher's
// internal/distritest, which exists for the same reason: give tests a
// real artifact to exercise instead of a mock of the parser.
package objfiletest

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
)

const (
	dtNeeded = 1
	dtRPath  = 15
	dtNull   = 0
)

// WriteELF writes a minimal little-endian ELF64 x86-64 shared object to
// path whose dynamic section lists needed as DT_NEEDED entries, in order.
// The file has no loadable segments and no machine code: it exists only to
// be readable by debug/elf (and in turn internal/objfile), not to be run.
func WriteELF(t testing.TB, path string, needed []string) {
	t.Helper()
	if err := os.WriteFile(path, buildMinimalELF(needed, ""), 0o644); err != nil {
		t.Fatalf("objfiletest: write %s: %v", path, err)
	}
}

// WriteELFWithRPath is WriteELF plus a DT_RPATH entry, for tests that need
// a binary (typically standing in for the interpreter) whose rpath feeds
// internal/gather's extraSearchPaths.
func WriteELFWithRPath(t testing.TB, path string, needed []string, rpath string) {
	t.Helper()
	if err := os.WriteFile(path, buildMinimalELF(needed, rpath), 0o644); err != nil {
		t.Fatalf("objfiletest: write %s: %v", path, err)
	}
}

func buildMinimalELF(needed []string, rpath string) []byte {
	// .dynstr always starts with a NUL so offset 0 means "no name".
	dynstr := []byte{0}
	offsets := make([]uint32, len(needed))
	for i, n := range needed {
		offsets[i] = uint32(len(dynstr))
		dynstr = append(dynstr, append([]byte(n), 0)...)
	}
	var rpathOff uint32
	if rpath != "" {
		rpathOff = uint32(len(dynstr))
		dynstr = append(dynstr, append([]byte(rpath), 0)...)
	}

	shstrtab := []byte{0}
	nameOff := func(s string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, append([]byte(s), 0)...)
		return off
	}
	shstrtabNameOff := nameOff(".shstrtab")
	dynstrNameOff := nameOff(".dynstr")
	dynamicNameOff := nameOff(".dynamic")

	var dyn bytes.Buffer
	for _, off := range offsets {
		writeDyn(&dyn, dtNeeded, uint64(off))
	}
	if rpath != "" {
		writeDyn(&dyn, dtRPath, uint64(rpathOff))
	}
	writeDyn(&dyn, dtNull, 0)

	const ehdrSize = 64
	const shdrSize = 64

	dynstrOff := uint64(ehdrSize)
	dynamicOff := dynstrOff + uint64(len(dynstr))
	shstrtabOff := dynamicOff + uint64(dyn.Len())
	shoff := shstrtabOff + uint64(len(shstrtab))

	var buf bytes.Buffer
	// e_ident
	buf.Write([]byte{0x7f, 'E', 'L', 'F', 2 /* ELFCLASS64 */, 1 /* ELFDATA2LSB */, 1 /* EV_CURRENT */, 0})
	buf.Write(make([]byte, 8)) // padding
	binary.Write(&buf, binary.LittleEndian, uint16(3))      // e_type = ET_DYN
	binary.Write(&buf, binary.LittleEndian, uint16(0x3e))   // e_machine = EM_X86_64
	binary.Write(&buf, binary.LittleEndian, uint32(1))      // e_version
	binary.Write(&buf, binary.LittleEndian, uint64(0))      // e_entry
	binary.Write(&buf, binary.LittleEndian, uint64(0))      // e_phoff
	binary.Write(&buf, binary.LittleEndian, shoff)          // e_shoff
	binary.Write(&buf, binary.LittleEndian, uint32(0))      // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehdrSize))
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_phentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(shdrSize))
	binary.Write(&buf, binary.LittleEndian, uint16(4)) // e_shnum: null, shstrtab, dynstr, dynamic
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // e_shstrndx

	if buf.Len() != ehdrSize {
		panic("objfiletest: ehdr size mismatch")
	}

	buf.Write(dynstr)
	buf.Write(dyn.Bytes())
	buf.Write(shstrtab)

	writeShdr(&buf, 0, 0, 0, 0, 0, 0) // SHN_UNDEF
	writeShdr(&buf, shstrtabNameOff, 3 /* SHT_STRTAB */, shstrtabOff, uint64(len(shstrtab)), 0, 0)
	writeShdr(&buf, dynstrNameOff, 3 /* SHT_STRTAB */, dynstrOff, uint64(len(dynstr)), 0, 0)
	writeShdr(&buf, dynamicNameOff, 6 /* SHT_DYNAMIC */, dynamicOff, uint64(dyn.Len()), 2 /* sh_link -> .dynstr */, 16)

	return buf.Bytes()
}

func writeDyn(buf *bytes.Buffer, tag int64, val uint64) {
	binary.Write(buf, binary.LittleEndian, tag)
	binary.Write(buf, binary.LittleEndian, val)
}

func writeShdr(buf *bytes.Buffer, name uint32, typ uint32, offset, size uint64, link, entsize uint32) {
	binary.Write(buf, binary.LittleEndian, name)
	binary.Write(buf, binary.LittleEndian, typ)
	binary.Write(buf, binary.LittleEndian, uint64(0)) // sh_flags
	binary.Write(buf, binary.LittleEndian, uint64(0)) // sh_addr
	binary.Write(buf, binary.LittleEndian, offset)
	binary.Write(buf, binary.LittleEndian, size)
	binary.Write(buf, binary.LittleEndian, link)
	binary.Write(buf, binary.LittleEndian, uint32(0)) // sh_info
	binary.Write(buf, binary.LittleEndian, uint64(1)) // sh_addralign
	binary.Write(buf, binary.LittleEndian, entsize)
}
