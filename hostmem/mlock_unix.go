//go:build unix

package hostmem

import "golang.org/x/sys/unix"

func lock(buf []byte) error   { return unix.Mlock(buf) }
func unlock(buf []byte) error { return unix.Munlock(buf) }
