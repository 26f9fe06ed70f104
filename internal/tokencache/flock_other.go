//go:build !unix && !windows

package tokencache

import "os"

// No OS advisory locks here; only the in-process semaphore applies.
func tryLockFile(*os.File) (bool, error) { return true, nil }

func unlockFile(*os.File) error { return nil }
