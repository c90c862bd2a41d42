package relocate

import (
	"bytes"
	"debug/macho"
	"fmt"
	"os"
	"strings"
)

// loadCommandKinds are the Mach-O load commands that carry an embedded
// path string the relocator cares about (§4.7): LC_ID_DYLIB, LC_LOAD_DYLIB,
// LC_LOAD_WEAK_DYLIB, LC_REEXPORT_DYLIB, LC_RPATH.
var loadCommandKinds = map[macho.LoadCmd]bool{
	macho.LoadCmdIdDylib:       true,
	macho.LoadCmdDylib:         true,
	macho.LoadCmdLoadWeakDylib: true,
	macho.LoadCmdReexportDylib: true,
	macho.LoadCmdRpath:         true,
}

// SkippedPath is one load-command path that starts with a replacement
// key but could not be patched in place (the new value is longer than the
// padded field), deferred to an install_name_tool fallback (§4.7).
type SkippedPath struct {
	OldPath string
	NewPath string
}

// PatchMachOFile rewrites every LC_ID_DYLIB / LC_LOAD_DYLIB /
// LC_LOAD_WEAK_DYLIB / LC_REEXPORT_DYLIB / LC_RPATH path that starts with a
// key of replacements, in place, NUL-padding to the original field width.
// debug/macho parses load-command structure and offsets (it is read-only);
// the actual byte rewrite below is hand-rolled since no third-party Mach-O
// writer exists in the retrieved corpus (§2B).
//
// Paths that would need to grow are returned as SkippedPath for the
// install_name_tool fallback. Returns (modified, skipped, err); a file that
// is not Mach-O at all returns (false, nil, nil) — parse failure is never
// fatal to the caller's relocation walk (§9).
func PatchMachOFile(path string, replacements map[string]string) (bool, []SkippedPath, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, nil, err
	}

	f, err := macho.NewFile(bytes.NewReader(raw))
	if err != nil {
		return false, nil, nil
	}
	defer f.Close()

	var headerLen int
	switch f.Magic {
	case macho.Magic32:
		headerLen = 28
	case macho.Magic64:
		headerLen = 32
	default:
		return false, nil, nil
	}
	byteOrder := f.ByteOrder

	modified := false
	var skipped []SkippedPath

	offset := headerLen
	for _, lc := range f.Loads {
		raw2 := lc.Raw()
		if len(raw2) < 8 {
			offset += len(raw2)
			continue
		}
		cmd := macho.LoadCmd(byteOrder.Uint32(raw2[0:4]))
		cmdsize := int(byteOrder.Uint32(raw2[4:8]))

		if loadCommandKinds[cmd] {
			if pathOff, ok := pathFieldOffset(cmd); ok && pathOff < len(raw2) {
				fieldStart := offset + pathOff
				fieldLen := cmdsize - pathOff
				if fieldLen > 0 && fieldStart+fieldLen <= len(raw) {
					did, skip, perr := patchPathField(raw, fieldStart, fieldLen, replacements)
					if perr != nil {
						return modified, skipped, perr
					}
					if did {
						modified = true
					}
					if skip != nil {
						skipped = append(skipped, *skip)
					}
				}
			}
		}
		offset += cmdsize
	}

	if modified {
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return modified, skipped, fmt.Errorf("writing patched mach-o %s: %w", path, err)
		}
	}

	return modified, skipped, nil
}

// pathFieldOffset returns the byte offset of the embedded path string
// within a load command's payload, relative to the command's start, per
// the dylib_command / rpath_command layouts (both begin with two uint32
// header fields: cmd, cmdsize).
func pathFieldOffset(cmd macho.LoadCmd) (int, bool) {
	switch cmd {
	case macho.LoadCmdIdDylib, macho.LoadCmdDylib, macho.LoadCmdLoadWeakDylib, macho.LoadCmdReexportDylib:
		// dylib_command: cmd, cmdsize, then dylib{ name(lc_str offset),
		// timestamp, current_version, compatibility_version } — 6 uint32
		// fields before the name string starts.
		return 24, true
	case macho.LoadCmdRpath:
		// rpath_command: cmd, cmdsize, path(lc_str offset) — 3 uint32
		// fields before the path string starts.
		return 12, true
	}
	return 0, false
}

// patchPathField replaces a NUL-terminated path string living in
// raw[fieldStart:fieldStart+fieldLen] if it starts with a replacements key,
// zero-padding the remainder. If the replacement is longer than fieldLen-1
// bytes, the patch is skipped and reported for the install_name_tool
// fallback instead (§4.7: in-place patching cannot grow a field).
func patchPathField(raw []byte, fieldStart, fieldLen int, replacements map[string]string) (bool, *SkippedPath, error) {
	field := raw[fieldStart : fieldStart+fieldLen]
	nul := bytes.IndexByte(field, 0)
	if nul < 0 {
		nul = len(field)
	}
	oldPath := string(field[:nul])
	if oldPath == "" {
		return false, nil, nil
	}

	for key, replacement := range replacements {
		if !strings.HasPrefix(oldPath, key) {
			continue
		}
		newPath := replacement + strings.TrimPrefix(oldPath, key)
		if len(newPath) > fieldLen-1 {
			return false, &SkippedPath{OldPath: oldPath, NewPath: newPath}, nil
		}
		for i := range field {
			field[i] = 0
		}
		copy(field, []byte(newPath))
		return true, nil, nil
	}
	return false, nil, nil
}
