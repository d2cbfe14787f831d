// Package sandbox runs one compiled executable against one test case under
// ptrace-based syscall filtering and time/memory accounting.
package sandbox

import (
	"bufio"
	"io"
	"os"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Outcome classifies one sandboxed run. The judge engine maps it onto
// its own case status; the sandbox stays ignorant of judging.
type Outcome int

const (
	// OutcomeAccepted means the program exited normally with status 0.
	OutcomeAccepted Outcome = iota
	OutcomeRuntimeError
	OutcomeTimeLimitExceeded
	OutcomeMemoryLimitExceeded
	OutcomeSystemError
)

// Limits bounds a run. A zero value on either axis means unlimited.
type Limits struct {
	TimeUS      uint64
	MemoryBytes uint64
}

// Input describes one sandboxed invocation.
type Input struct {
	Executable string
	Args       []string
	InputFile  string
	OutputFile string
	Limits     Limits
}

// Resources is the measured resource consumption of a run.
type Resources struct {
	TimeUS      uint64
	MemoryBytes uint64
}

// Result is the classified outcome of one sandboxed run.
type Result struct {
	Outcome   Outcome
	Resources Resources
	// Detail is a short human-readable explanation, stored into
	// JobCase.Info for non-accepted outcomes.
	Detail string
}

// bannedSyscalls is the implementation-tunable policy lever named in the
// design notes: any syscall entry matching one of these kills the tracee.
// 448 is process_mrelease on linux/amd64, the sentinel the design notes
// call out as the initial minimum set.
var bannedSyscalls = map[uint64]bool{
	448: true,
}

// syscallInfo mirrors the kernel's ptrace_syscall_info as consumed via
// PTRACE_GET_SYSCALL_INFO: Op distinguishes syscall-entry (1) from
// syscall-exit (2) stops.
type syscallInfo struct {
	Op                 uint8
	_                  [3]byte
	Arch               uint32
	InstructionPointer uint64
	StackPointer       uint64
	Entry              struct {
		Nr   uint64
		Args [6]uint64
	}
}

const (
	ptraceSyscallInfoNone  = 0
	ptraceSyscallInfoEntry = 1
	ptraceSyscallInfoExit  = 2
)

func ptraceGetSyscallInfo(pid int) (syscallInfo, error) {
	var info syscallInfo
	_, _, errno := unix.Syscall6(
		unix.SYS_PTRACE,
		unix.PTRACE_GET_SYSCALL_INFO,
		uintptr(pid),
		unsafe.Sizeof(info),
		uintptr(unsafe.Pointer(&info)),
		0, 0,
	)
	if errno != 0 {
		return info, errno
	}
	return info, nil
}

// startTraced forks and execs the target with PTRACE_TRACEME installed,
// stdin/stdout redirected to the given files.
func startTraced(executable string, args []string, stdin, stdout *os.File) (int, error) {
	full := make([]string, 0, len(args)+1)
	full = append(full, executable)
	full = append(full, args...)
	proc, err := os.StartProcess(executable, full, &os.ProcAttr{
		Dir:   path.Dir(executable),
		Files: []*os.File{stdin, stdout, stdout},
		Sys:   &unix.SysProcAttr{Ptrace: true},
	})
	if err != nil {
		return 0, err
	}
	return proc.Pid, nil
}

func readPeakRSSBytes(pid int) (uint64, error) {
	f, err := os.Open(path.Join("/proc", strconv.Itoa(pid), "status"))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var peakKB uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, "VmHWM:"); ok {
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				n, _ := strconv.ParseUint(fields[0], 10, 64)
				peakKB = n
			}
			break
		}
	}
	return peakKB * 1024, scanner.Err()
}

// Run executes one case in a traced child, classifying its outcome per the
// banned-syscall / signal / limit rules. Fork/exec/wait failures surface
// as OutcomeSystemError (no runner-level retry; rerun is user-initiated).
func Run(in Input) Result {
	stdin, err := os.Open(in.InputFile)
	if err != nil {
		return Result{Outcome: OutcomeSystemError, Detail: "open input: " + err.Error()}
	}
	defer stdin.Close()

	stdout, err := os.Create(in.OutputFile)
	if err != nil {
		return Result{Outcome: OutcomeSystemError, Detail: "open output: " + err.Error()}
	}
	defer stdout.Close()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pid, err := startTraced(in.Executable, in.Args, stdin, stdout)
	if err != nil {
		return Result{Outcome: OutcomeSystemError, Detail: "fork/exec: " + err.Error()}
	}

	var status unix.WaitStatus
	var rusage unix.Rusage
	if _, err := unix.Wait4(pid, &status, 0, &rusage); err != nil {
		return Result{Outcome: OutcomeSystemError, Detail: "wait for initial stop: " + err.Error()}
	}
	unix.PtraceSetOptions(pid, unix.PTRACE_O_TRACEEXIT)

	start := time.Now()
	var monitorDone chan struct{}
	var timedOut atomic.Bool
	if in.Limits.TimeUS > 0 {
		monitorDone = make(chan struct{})
		go func() {
			select {
			case <-time.After(time.Duration(in.Limits.TimeUS) * time.Microsecond):
				timedOut.Store(true)
				unix.Kill(pid, unix.SIGTERM)
			case <-monitorDone:
			}
		}()
	}
	stopMonitor := func() {
		if monitorDone != nil {
			close(monitorDone)
		}
	}

	var peakRSS uint64
	entryOp := ptraceSyscallInfoNone

	for {
		if err := unix.PtraceSyscall(pid, 0); err != nil {
			stopMonitor()
			return Result{Outcome: OutcomeSystemError, Detail: "ptrace syscall: " + err.Error()}
		}
		if _, err := unix.Wait4(pid, &status, 0, &rusage); err != nil {
			stopMonitor()
			return Result{Outcome: OutcomeSystemError, Detail: "wait: " + err.Error()}
		}

		if rss, err := readPeakRSSBytes(pid); err == nil && rss > peakRSS {
			peakRSS = rss
		}
		if in.Limits.MemoryBytes > 0 && peakRSS > in.Limits.MemoryBytes {
			unix.Kill(pid, unix.SIGKILL)
			unix.Wait4(pid, nil, 0, nil)
			stopMonitor()
			return Result{
				Outcome:   OutcomeMemoryLimitExceeded,
				Resources: Resources{TimeUS: uint64(time.Since(start).Microseconds()), MemoryBytes: peakRSS},
				Detail:    "peak RSS exceeded memory limit",
			}
		}

		switch {
		case status.Exited():
			stopMonitor()
			res := Resources{TimeUS: uint64(time.Since(start).Microseconds()), MemoryBytes: peakRSS}
			if timedOut.Load() {
				return Result{Outcome: OutcomeTimeLimitExceeded, Resources: res, Detail: "wall-clock limit exceeded"}
			}
			if status.ExitStatus() != 0 {
				return Result{Outcome: OutcomeRuntimeError, Resources: res, Detail: "exited with status " + strconv.Itoa(status.ExitStatus())}
			}
			return Result{Outcome: OutcomeAccepted, Resources: res}

		case status.Signaled():
			stopMonitor()
			res := Resources{TimeUS: uint64(time.Since(start).Microseconds()), MemoryBytes: peakRSS}
			sig := status.Signal()
			if timedOut.Load() || sig == unix.SIGXCPU || sig == unix.SIGTERM {
				return Result{Outcome: OutcomeTimeLimitExceeded, Resources: res, Detail: "terminated by " + sig.String()}
			}
			if sig == unix.SIGSEGV && in.Limits.MemoryBytes > 0 && peakRSS >= in.Limits.MemoryBytes {
				return Result{Outcome: OutcomeMemoryLimitExceeded, Resources: res, Detail: "segfault under memory pressure"}
			}
			return Result{Outcome: OutcomeRuntimeError, Resources: res, Detail: "terminated by signal " + sig.String()}

		case status.Stopped() && status.TrapCause() == unix.PTRACE_EVENT_EXIT:
			// last observable snapshot before the tracee exits; usages
			// already refreshed above, keep tracing to the real exit.
			continue

		case status.StopSignal() == unix.SIGTRAP:
			info, ierr := ptraceGetSyscallInfo(pid)
			if ierr == nil && info.Op == ptraceSyscallInfoEntry {
				if bannedSyscalls[info.Entry.Nr] {
					unix.Kill(pid, unix.SIGKILL)
					unix.Wait4(pid, nil, 0, nil)
					stopMonitor()
					return Result{
						Outcome:   OutcomeRuntimeError,
						Resources: Resources{TimeUS: uint64(time.Since(start).Microseconds()), MemoryBytes: peakRSS},
						Detail:    "banned syscall " + strconv.FormatUint(info.Entry.Nr, 10),
					}
				}
				entryOp = ptraceSyscallInfoEntry
			} else if entryOp == ptraceSyscallInfoEntry {
				entryOp = ptraceSyscallInfoExit
			}

		default:
			// a non-trace stop signal (SIGSEGV and friends delivered as a
			// signal-stop): the tracee is still alive, so kill and reap it
			// before classifying
			sig := status.StopSignal()
			unix.Kill(pid, unix.SIGKILL)
			unix.Wait4(pid, nil, 0, nil)
			stopMonitor()
			res := Resources{TimeUS: uint64(time.Since(start).Microseconds()), MemoryBytes: peakRSS}
			if timedOut.Load() || sig == unix.SIGTERM || sig == unix.SIGXCPU {
				return Result{Outcome: OutcomeTimeLimitExceeded, Resources: res, Detail: "stopped by " + sig.String()}
			}
			if sig == unix.SIGSEGV && in.Limits.MemoryBytes > 0 && peakRSS >= in.Limits.MemoryBytes {
				return Result{Outcome: OutcomeMemoryLimitExceeded, Resources: res, Detail: "segfault under memory pressure"}
			}
			return Result{
				Outcome:   OutcomeRuntimeError,
				Resources: res,
				Detail:    "stopped by signal " + sig.String(),
			}
		}
	}
}

// DrainOutput reads back the captured stdout for judging. Kept separate
// from Run so callers can stream large outputs differently in the future
// without touching the sandbox loop.
func DrainOutput(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
