package tool

import (
	"os"

	"github.com/pkg/errors"
)

// FSCreateMultiDir creates the directory path and any missing parents.
func FSCreateMultiDir(filePath string) error {
	if FSPathIsExist(filePath) {
		return nil
	}
	if err := os.MkdirAll(filePath, os.ModePerm); err != nil {
		return errors.Wrapf(err, "creating directory %s", filePath)
	}
	return nil
}

// FSPathIsExist reports whether the file or directory at path exists.
func FSPathIsExist(path string) bool {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsExist(err) {
			return true
		}
		return false
	}
	return true
}
