package machopatch

import (
	"encoding/binary"
	"testing"
)

func TestBuildRpathCommandPadsTo8ByteBoundary(t *testing.T) {
	cmd, err := buildRpathCommand(binary.LittleEndian, true, "@loader_path/../symlinks/abcd")
	if err != nil {
		t.Fatalf("buildRpathCommand: %v", err)
	}
	if len(cmd)%8 != 0 {
		t.Errorf("len(cmd) = %d, want multiple of 8", len(cmd))
	}
	cmdsize := binary.LittleEndian.Uint32(cmd[4:8])
	if int(cmdsize) != len(cmd) {
		t.Errorf("cmdsize field = %d, want %d (actual length)", cmdsize, len(cmd))
	}
	pathOff := binary.LittleEndian.Uint32(cmd[8:12])
	got := string(cmd[pathOff:])
	// The embedded path is NUL-padded; trim trailing zero bytes.
	for len(got) > 0 && got[len(got)-1] == 0 {
		got = got[:len(got)-1]
	}
	if want := "@loader_path/../symlinks/abcd"; got != want {
		t.Errorf("embedded path = %q, want %q", got, want)
	}
}

func TestRewriteDylibNameFitsAndOverflow(t *testing.T) {
	// A minimal dylib_command: cmd(4) cmdsize(4) name.offset(4)=12,
	// then 20 bytes of padded name space, for cmdsize=32 total.
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[8:12], 12) // name.offset
	copy(buf[12:], "/usr/lib/libfoo.1.dylib\x00\x00\x00\x00\x00\x00\x00\x00\x00")

	if err := rewriteDylibName(buf, 0, 32, binary.LittleEndian, "@rpath/libfoo.dylib"); err != nil {
		t.Fatalf("rewriteDylibName: %v", err)
	}
	got := string(buf[12:])
	for len(got) > 0 && got[len(got)-1] == 0 {
		got = got[:len(got)-1]
	}
	if got != "@rpath/libfoo.dylib" {
		t.Errorf("name = %q, want @rpath/libfoo.dylib", got)
	}

	if err := rewriteDylibName(buf, 0, 32, binary.LittleEndian, "@rpath/a-name-far-too-long-to-fit-in-twenty-bytes.dylib"); err == nil {
		t.Error("rewriteDylibName with an oversized name = nil error, want overflow error")
	}
}

func TestZeroToNopPreservesCmdsize(t *testing.T) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], 0x8000001c) // LC_RPATH
	binary.LittleEndian.PutUint32(buf[4:8], 16)
	copy(buf[8:], "/opt/lib\x00\x00\x00\x00\x00\x00\x00\x00")

	zeroToNop(buf, 0, 16, binary.LittleEndian)

	if cmd := binary.LittleEndian.Uint32(buf[0:4]); cmd != 0 {
		t.Errorf("cmd = %#x, want 0", cmd)
	}
	if cmdsize := binary.LittleEndian.Uint32(buf[4:8]); cmdsize != 16 {
		t.Errorf("cmdsize = %d, want 16 (unchanged)", cmdsize)
	}
	for i, b := range buf[8:] {
		if b != 0 {
			t.Errorf("buf[%d] = %#x, want 0 after zeroing", 8+i, b)
		}
	}
}

func TestIncrementCountsNoopOnZeroDelta(t *testing.T) {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[16:20], 5)   // ncmds
	binary.LittleEndian.PutUint32(buf[20:24], 100) // sizeofcmds

	incrementCounts(buf, 0, binary.LittleEndian, 0)
	if got := binary.LittleEndian.Uint32(buf[16:20]); got != 5 {
		t.Errorf("ncmds = %d, want unchanged 5", got)
	}

	incrementCounts(buf, 0, binary.LittleEndian, 40)
	if got := binary.LittleEndian.Uint32(buf[16:20]); got != 6 {
		t.Errorf("ncmds = %d, want 6", got)
	}
	if got := binary.LittleEndian.Uint32(buf[20:24]); got != 140 {
		t.Errorf("sizeofcmds = %d, want 140", got)
	}
}
