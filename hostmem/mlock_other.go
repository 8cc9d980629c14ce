//go:build !unix

package hostmem

import "errors"

var errUnsupported = errors.New("hostmem: memory locking not supported")

func lock([]byte) error   { return errUnsupported }
func unlock([]byte) error { return errUnsupported }
