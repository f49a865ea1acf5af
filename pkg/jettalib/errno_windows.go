//go:build windows

package jettalib

import "syscall"

// Native WSAE* codes. Go maps only some of them onto the POSIX constants.
var platformTransientErrnos = []syscall.Errno{
	10050, // WSAENETDOWN
	10051, // WSAENETUNREACH
	10052, // WSAENETRESET
	10053, // WSAECONNABORTED
	10054, // WSAECONNRESET
	10055, // WSAENOBUFS
	10060, // WSAETIMEDOUT
	10061, // WSAECONNREFUSED
	10064, // WSAEHOSTDOWN
	10065, // WSAEHOSTUNREACH
}
