//go:build !unix

package preflight

import "os"

// checkWritable creates and removes a probe file, since access(2) is not
// available.
func checkWritable(path string) error {
	f, err := os.CreateTemp(path, ".splicer-preflight-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
