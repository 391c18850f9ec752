package testutil

import (
	"os"
	"path/filepath"
	"runtime"
)

// Path returns the absolute path of a file under internal/testutil/testdata.
func Path(elem ...string) string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Join(append([]string{filepath.Dir(currentFile), "testdata"}, elem...)...)
}

// ReadFile reads a file under testdata.
func ReadFile(elem ...string) ([]byte, error) {
	return os.ReadFile(Path(elem...))
}
