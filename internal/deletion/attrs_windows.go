//go:build windows

package deletion

import "golang.org/x/sys/windows"

// clearAttributes resets read-only, hidden, system and archive flags.
func clearAttributes(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	return windows.SetFileAttributes(p, windows.FILE_ATTRIBUTE_NORMAL)
}
