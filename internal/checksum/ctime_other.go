//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package checksum

import (
	"os"
	"time"
)

// statCtime falls back to the modification time where the platform has no
// status-change time.
func statCtime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
