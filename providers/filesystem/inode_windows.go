//go:build windows

package filesystem

import (
	"fmt"
	"os"
)

// inodeKey returns a weak but stable-enough identifier used to detect
// symlink loops on platforms without inode numbers.
func inodeKey(info os.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", info.Name(), info.Size(), info.ModTime().UnixNano())
}
