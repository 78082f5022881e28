//go:build !windows

package filesystem

import (
	"fmt"
	"os"
	"syscall"
)

// inodeKey returns a stable device:inode identifier used to detect
// symlink loops.
func inodeKey(info os.FileInfo) string {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Sprintf("fallback:%s_%d", info.Name(), info.ModTime().UnixNano())
	}
	return fmt.Sprintf("dev:%d_ino:%d", stat.Dev, stat.Ino)
}
