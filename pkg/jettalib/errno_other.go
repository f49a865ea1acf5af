//go:build !windows

package jettalib

import "syscall"

var platformTransientErrnos []syscall.Errno
