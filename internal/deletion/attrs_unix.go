//go:build unix

package deletion

import "golang.org/x/sys/unix"

func clearAttributes(path string) error {
	return unix.Chmod(path, 0o777)
}
