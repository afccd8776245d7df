//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd || windows)

package storage

import (
	"fmt"
	"os"
	"runtime"
)

func tryLock(*os.File) (bool, error) {
	return false, fmt.Errorf("state file locking is not supported on %s", runtime.GOOS)
}

func unlock(*os.File) error {
	return nil
}
