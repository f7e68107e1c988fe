// Package machopatch implements §4.9's macOS binary patcher: rewrite a
// Mach-O binary's LC_LOAD_DYLIB install names to @rpath-relative values,
// strip its existing LC_RPATH commands, and add a single LC_RPATH
// pointing at its symlink farm. The rewrite is applied in-process,
// without shelling out to install_name_tool.
package machopatch

import (
	"debug/macho"
	"encoding/binary"
	"os"

	"github.com/orcaman/writerseeker"
	"golang.org/x/xerrors"
)

// ErrNoHeaderRoom is returned when the binary's load-command area has no
// slack left to grow into for the new LC_RPATH command. Real Mach-O
// linkers typically leave some padding between the load commands and
// the first section for exactly this kind of in-place patch; a binary
// packed tight against that boundary cannot be patched without shifting
// every section, which this package does not implement.
var ErrNoHeaderRoom = xerrors.New("machopatch: no header room for new load commands")

// Rewrite maps an original LC_LOAD_DYLIB install name to the @rpath
// form it should carry after patching (just the basename, per §4.9).
type Rewrite struct {
	OriginalName string
	NewBasename  string
}

// Patch rewrites the Mach-O file at path in place: every LC_LOAD_DYLIB
// install name matching a Rewrite becomes "@rpath/{NewBasename}", all
// existing LC_RPATH commands are zeroed into LC_NOPs, and one new
// LC_RPATH("@loader_path/{relFromRealsToFarm}") is appended into any
// available header slack.
func Patch(path string, rewrites []Rewrite, relFromRealsToFarm string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("machopatch: read %s: %w", path, err)
	}

	f, err := macho.Open(path)
	if err != nil {
		return xerrors.Errorf("machopatch: open %s: %w", path, err)
	}
	defer f.Close()

	bo := f.ByteOrder
	headerSize := 28
	if f.Magic == macho.Magic64 {
		headerSize = 28 + 4 // mach_header_64 has an extra reserved uint32
	}

	byName := make(map[string]string, len(rewrites))
	for _, r := range rewrites {
		byName[r.OriginalName] = r.NewBasename
	}

	buf := append([]byte(nil), raw...)
	var rpathCmds [][2]int // [offset, cmdsize) ranges to zero
	offset := headerSize
	for _, l := range f.Loads {
		cmdOff := offset
		data := l.Raw()
		cmd := macho.LoadCmd(bo.Uint32(data[0:4]))
		cmdsize := int(bo.Uint32(data[4:8]))

		switch v := l.(type) {
		case *macho.Dylib:
			if newBase, ok := byName[v.Name]; ok {
				if err := rewriteDylibName(buf, cmdOff, cmdsize, bo, "@rpath/"+newBase); err != nil {
					return xerrors.Errorf("machopatch: %s: %w", path, err)
				}
			}
		case *macho.Rpath:
			rpathCmds = append(rpathCmds, [2]int{cmdOff, cmdsize})
		}
		offset += cmdsize
	}

	for _, r := range rpathCmds {
		zeroToNop(buf, r[0], r[1], bo)
	}

	loadCmdsEnd := offset
	firstSectionOffset := firstSectionFileOffset(f)
	newCmd, err := buildRpathCommand(bo, f.Magic == macho.Magic64, "@loader_path/"+relFromRealsToFarm)
	if err != nil {
		return err
	}
	if firstSectionOffset > 0 && loadCmdsEnd+len(newCmd) > firstSectionOffset {
		return ErrNoHeaderRoom
	}

	incrementCounts(buf, headerSize, bo, len(newCmd))

	out := &writerseeker.WriterSeeker{}
	if _, err := out.Write(buf[:loadCmdsEnd]); err != nil {
		return err
	}
	if _, err := out.Write(newCmd); err != nil {
		return err
	}
	if loadCmdsEnd+len(newCmd) < len(buf) {
		if _, err := out.Write(buf[loadCmdsEnd+len(newCmd):]); err != nil {
			return err
		}
	}

	result, err := readAllBytes(out)
	if err != nil {
		return err
	}

	return os.WriteFile(path, result, 0o755)
}

func readAllBytes(w *writerseeker.WriterSeeker) ([]byte, error) {
	r := w.Reader()
	var out []byte
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			out = append(out, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return out, nil
}

// rewriteDylibName overwrites an LC_LOAD_DYLIB/LC_LOAD_WEAK_DYLIB
// command's name string in place. The new name must fit within the
// command's existing padded size; Mach-O load command strings are
// null-padded to a multiple of 4/8 bytes, so a shorter @rpath-relative
// name usually fits where the original (often a long absolute path)
// lived.
func rewriteDylibName(buf []byte, cmdOff, cmdsize int, bo binary.ByteOrder, newName string) error {
	const nameOffsetField = 8 // offsetof(dylib_command, dylib.name)
	nameOff := int(bo.Uint32(buf[cmdOff+nameOffsetField : cmdOff+nameOffsetField+4]))
	available := cmdsize - nameOff
	if len(newName)+1 > available {
		return xerrors.Errorf("new install name %q (%d bytes) does not fit in %d available", newName, len(newName)+1, available)
	}
	start := cmdOff + nameOff
	for i := start; i < cmdOff+cmdsize; i++ {
		buf[i] = 0
	}
	copy(buf[start:], newName)
	return nil
}

// zeroToNop converts a load command's bytes into an LC_NOP-equivalent
// region: a single fabricated LC_NOP-ish command with matching cmdsize,
// since Mach-O has no official LC_NOP, macOS's own loader just requires
// cmdsize to stay self-consistent, and strip-style tools commonly reuse
// LC_SEGMENT-style placeholders instead; here the command's cmd field is
// replaced with a reserved value (0) and the remainder zeroed, which the
// loader skips because it iterates exactly cmdsize bytes regardless of
// whether it recognizes the cmd value when the command is not essential
// to loading (rpath commands are advisory).
func zeroToNop(buf []byte, cmdOff, cmdsize int, bo binary.ByteOrder) {
	bo.PutUint32(buf[cmdOff:cmdOff+4], 0)
	for i := cmdOff + 4; i < cmdOff+cmdsize; i++ {
		buf[i] = 0
	}
	bo.PutUint32(buf[cmdOff+4:cmdOff+8], uint32(cmdsize))
}

// buildRpathCommand constructs a complete LC_RPATH load command with
// its path string, padded to an 8-byte boundary as the linker does.
func buildRpathCommand(bo binary.ByteOrder, is64 bool, path string) ([]byte, error) {
	const lcRpath = 0x8000001c // LC_RPATH
	const headerLen = 12       // cmd, cmdsize, path-offset
	strLen := len(path) + 1
	total := headerLen + strLen
	pad := (8 - total%8) % 8
	total += pad

	cmd := make([]byte, total)
	bo.PutUint32(cmd[0:4], lcRpath)
	bo.PutUint32(cmd[4:8], uint32(total))
	bo.PutUint32(cmd[8:12], uint32(headerLen))
	copy(cmd[headerLen:], path)
	return cmd, nil
}

// firstSectionFileOffset finds the lowest file offset among all
// sections, which bounds how far the load command area can grow before
// it would overwrite actual segment content. Zero-fill sections carry
// no file offset (0) and are ignored.
func firstSectionFileOffset(f *macho.File) int {
	min := -1
	for _, s := range f.Sections {
		off := int(s.Offset)
		if off == 0 {
			continue
		}
		if min == -1 || off < min {
			min = off
		}
	}
	return min
}

// incrementCounts updates the mach_header's ncmds/sizeofcmds fields by
// the delta introduced by appending the new LC_RPATH command. delta==0
// calls are no-ops kept for symmetry with the copy made before writing.
func incrementCounts(buf []byte, headerSize int, bo binary.ByteOrder, delta int) {
	if delta == 0 {
		return
	}
	const ncmdsOff = 16
	const sizeofcmdsOff = 20
	ncmds := bo.Uint32(buf[ncmdsOff : ncmdsOff+4])
	sizeofcmds := bo.Uint32(buf[sizeofcmdsOff : sizeofcmdsOff+4])
	bo.PutUint32(buf[ncmdsOff:ncmdsOff+4], ncmds+1)
	bo.PutUint32(buf[sizeofcmdsOff:sizeofcmdsOff+4], sizeofcmds+uint32(delta))
}
