package record

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// HashAlgorithm tags every content hash so the algorithm can change later
// without ambiguity in stored records.
const HashAlgorithm = "sha1"

// Hasher computes algorithm-tagged content identities for files.
// The zero value is ready to use and logs through slog.Default.
type Hasher struct {
	Log *slog.Logger
}

// Hash returns "<algo>_<hex>" for the file contents, or "" if the hash
// cannot be computed. Missing files, directories, FIFOs (which would block
// an open for reading) and permission errors all degrade to the empty
// marker with a warning; Hash never fails.
func (h Hasher) Hash(path string) string {
	log := h.Log
	if log == nil {
		log = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		log.Warn("cannot hash file", "path", path, "err", err)
		return ""
	}
	if !info.Mode().IsRegular() {
		// Covers FIFOs, sockets, devices and directories. FIFOs in
		// particular must not be opened: the open would block.
		log.Warn("skipping hash of non-regular file", "path", path, "mode", info.Mode().String())
		return ""
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warn("cannot hash file", "path", path, "err", err)
		return ""
	}
	defer f.Close()

	sum := sha1.New()
	if _, err := io.Copy(sum, f); err != nil {
		log.Warn("cannot hash file", "path", path, "err", err)
		return ""
	}
	return fmt.Sprintf("%s_%s", HashAlgorithm, hex.EncodeToString(sum.Sum(nil)))
}
