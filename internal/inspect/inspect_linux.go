package inspect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/procfs"

	"github.com/Simonization/webservTester/internal/model"
)

// Inspector is the Linux ProcessInspector, built on procfs.
type Inspector struct {
	fs  procfs.FS
	log *slog.Logger
}

func New(log *slog.Logger) ProcessInspector {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return unavailable{reason: fmt.Sprintf("procfs: %v", err)}
	}

	return &Inspector{fs: fs, log: log}
}

// readiness syscalls shared by every linux architecture
var strategyBySyscall = map[uint64]model.IOStrategy{
	syscallPselect6:   model.IOStrategySelect,
	syscallPpoll:      model.IOStrategyPoll,
	syscallEpollPwait: model.IOStrategyEpoll,
}

// ClassifyIOStrategy polls /proc/<pid>/syscall over the window. The SUT must
// be receiving traffic concurrently, otherwise it may be blocked outside its
// event loop the whole time and classify as unknown.
func (i *Inspector) ClassifyIOStrategy(ctx context.Context, pid int, window time.Duration) (model.IOStrategy, error) {
	path := "/proc/" + strconv.Itoa(pid) + "/syscall"

	if _, err := os.Stat(path); err != nil {
		return model.IOStrategyUnknown, model.InspectionUnavailableError{Reason: fmt.Sprintf("%s: %v", path, err)}
	}

	deadline := time.NewTimer(window)
	defer deadline.Stop()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	seen := map[model.IOStrategy]int{}

	for {
		select {
		case <-ctx.Done():
			return model.IOStrategyUnknown, ctx.Err()
		case <-deadline.C:
			return dominantStrategy(seen), nil
		case <-tick.C:
		}

		nr, ok := currentSyscall(path)
		if !ok {
			continue
		}

		if st, hit := strategyBySyscall[nr]; hit {
			seen[st]++
		}
	}
}

func dominantStrategy(seen map[model.IOStrategy]int) model.IOStrategy {
	best := model.IOStrategyUnknown
	bestCount := 0

	for st, n := range seen {
		if n > bestCount {
			best, bestCount = st, n
		}
	}

	return best
}

// currentSyscall parses the first field of /proc/<pid>/syscall: the number of
// the syscall the process is currently blocked in, or "running"/-1 when it is
// not in one.
func currentSyscall(path string) (uint64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 || fields[0] == "running" || fields[0] == "-1" {
		return 0, false
	}

	nr, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}

	return nr, true
}

func (i *Inspector) SampleMemory(pid int) (uint64, error) {
	proc, err := i.fs.Proc(pid)
	if err != nil {
		return 0, model.InspectionUnavailableError{Reason: fmt.Sprintf("proc %d: %v", pid, err)}
	}

	stat, err := proc.Stat()
	if err != nil {
		return 0, model.InspectionUnavailableError{Reason: fmt.Sprintf("stat %d: %v", pid, err)}
	}

	return uint64(stat.ResidentMemory()), nil
}

const tcpEstablished = 1

func (i *Inspector) CountEstablishedConnections(port int) (int, error) {
	count := 0

	tcp, err := i.fs.NetTCP()
	if err != nil {
		return 0, model.InspectionUnavailableError{Reason: fmt.Sprintf("net/tcp: %v", err)}
	}

	for _, line := range tcp {
		if line.St == tcpEstablished && line.LocalPort == uint64(port) {
			count++
		}
	}

	if tcp6, err := i.fs.NetTCP6(); err == nil {
		for _, line := range tcp6 {
			if line.St == tcpEstablished && line.LocalPort == uint64(port) {
				count++
			}
		}
	}

	return count, nil
}
