//go:build linux

package record

import (
	"io/fs"
	"os/user"
	"strconv"
	"syscall"
)

// statDetail fills the fields only the platform stat structure carries:
// ctime, inode, device and the owning user.
func statDetail(fi *FileInfo, info fs.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	fi.Ctime = st.Ctim.Sec
	fi.Inode = st.Ino
	fi.Device = uint64(st.Dev)
	if u, err := user.LookupId(strconv.FormatUint(uint64(st.Uid), 10)); err == nil {
		fi.Owner = u.Username
	}
}
