//go:build linux || darwin || freebsd || netbsd || openbsd

package checksum

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// statCtime returns the inode status-change time.
func statCtime(path string) (time.Time, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	sec, nsec := st.Ctim.Unix()
	return time.Unix(sec, nsec), nil
}
