package record

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Input builds a read-mode FileRef for a single file.
func Input(val string) FileRef {
	return FileRef{Val: val, Mode: Read}
}

// Output builds a write-mode FileRef for a single file.
func Output(val string) FileRef {
	return FileRef{Val: val, Mode: Write}
}

// InputGroup builds a read-mode FileRef whose value expands to several
// concrete paths (e.g. a common prefix for a family of files).
func InputGroup(val string, expand func(string) []string) FileRef {
	return FileRef{Val: val, Mode: Read, Expand: expand}
}

// OutputGroup is InputGroup for write-mode arguments.
func OutputGroup(val string, expand func(string) []string) FileRef {
	return FileRef{Val: val, Mode: Write, Expand: expand}
}

// Paths returns the concrete filenames denoted by this argument.
func (f FileRef) Paths() []string {
	if f.Expand != nil {
		return f.Expand(f.Val)
	}
	return []string{f.Val}
}

// Captured returns a copy of the FileRef with per-file metadata filled in.
// Input files are always hashed; output files only when outFilesExist (a
// failed step may have left partial or garbage outputs). Stat failures
// degrade to name-only entries with a warning. Captured never fails.
func (f FileRef) Captured(h Hasher, outFilesExist bool, log *slog.Logger) FileRef {
	if log == nil {
		log = slog.Default()
	}

	out := FileRef{Val: f.Val, Mode: f.Mode, Expand: f.Expand}
	for _, path := range f.Paths() {
		fi := FileInfo{Fname: path}
		if abs, err := filepath.Abs(path); err == nil {
			fi.AbsPath = abs
		} else {
			fi.AbsPath = path
		}
		fi.RealPath = Realpath(path)

		if f.Mode == Read || outFilesExist {
			fi.Hash = h.Hash(path)
			fi.HasHash = true
			fillStat(&fi, path, log)
		}
		out.Files = append(out.Files, fi)
	}
	return out
}

func fillStat(fi *FileInfo, path string, log *slog.Logger) {
	info, err := os.Stat(path)
	if err != nil {
		log.Warn("cannot stat file", "path", path, "err", err)
		return
	}
	fi.Size = info.Size()
	fi.Mtime = info.ModTime().Unix()
	fi.HasStat = true

	statDetail(fi, info)
}

// Realpath resolves symlinks and returns an absolute path. When resolution
// fails (e.g. the file does not exist yet) it falls back to the cleaned
// absolute form so the value is still usable as a node identity.
func Realpath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
