package inspect

import (
	"golang.org/x/sys/unix"

	"github.com/Simonization/webservTester/internal/model"
)

const (
	syscallPselect6   = unix.SYS_PSELECT6
	syscallPpoll      = unix.SYS_PPOLL
	syscallEpollPwait = unix.SYS_EPOLL_PWAIT
)

// the legacy entry points only exist on amd64
func init() {
	strategyBySyscall[unix.SYS_SELECT] = model.IOStrategySelect
	strategyBySyscall[unix.SYS_POLL] = model.IOStrategyPoll
	strategyBySyscall[unix.SYS_EPOLL_WAIT] = model.IOStrategyEpoll
}
