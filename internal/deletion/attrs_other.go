//go:build !unix && !windows

package deletion

import "os"

func clearAttributes(path string) error {
	return os.Chmod(path, 0o777)
}
