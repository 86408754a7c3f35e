package inspect

import "golang.org/x/sys/unix"

const (
	syscallPselect6   = unix.SYS_PSELECT6
	syscallPpoll      = unix.SYS_PPOLL
	syscallEpollPwait = unix.SYS_EPOLL_PWAIT
)
