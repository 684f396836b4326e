//go:build !linux

package record

import "io/fs"

// statDetail is a no-op where the platform stat structure is not
// available; ctime, inode, device and owner stay at their zero values.
func statDetail(fi *FileInfo, info fs.FileInfo) {}
