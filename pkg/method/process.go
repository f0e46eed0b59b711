package method

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Process is a running method binary and the parent ends of its pipe pair.
// The read end carries records from the method's stdout, the write end feeds
// its stdin. Both parent ends are non-blocking; callers drive them from a
// readiness loop using ReadFd/WriteFd with raw reads and writes.
type Process struct {
	access  string
	cmd     *exec.Cmd
	in, out *os.File
	reaped  bool
}

// Spawn starts the method binary. The child sees CallingPath as its argv[0],
// its stdout wired to our read pipe and its stdin to our write pipe. Stderr
// passes through.
func Spawn(access string, res Resolution) (*Process, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: pipe: %v", ErrStartFailed, err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return nil, fmt.Errorf("%w: pipe: %v", ErrStartFailed, err)
	}

	cmd := exec.Command(res.ExecPath)
	cmd.Args = []string{res.CallingPath}
	cmd.Stdout = inW
	cmd.Stdin = outR
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		inR.Close()
		inW.Close()
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrStartFailed, res.ExecPath, err)
	}

	// child ends live on in the method only
	inW.Close()
	outR.Close()

	for _, f := range []*os.File{inR, outW} {
		if err := syscall.SetNonblock(int(f.Fd()), true); err != nil {
			inR.Close()
			outW.Close()
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return nil, fmt.Errorf("%w: set nonblock: %v", ErrStartFailed, err)
		}
	}

	return &Process{access: access, cmd: cmd, in: inR, out: outW}, nil
}

// Access returns the scheme this process serves.
func (p *Process) Access() string { return p.access }

// ReadFd is the parent end carrying the method's output.
func (p *Process) ReadFd() int { return nonblockingFd(p.in) }

// WriteFd is the parent end feeding the method's input.
func (p *Process) WriteFd() int { return nonblockingFd(p.out) }

// nonblockingFd returns the raw descriptor of f, or -1 once f is closed.
// os.File.Fd switches the descriptor to blocking mode, so the non-blocking
// flag is set again before the number is handed out.
func nonblockingFd(f *os.File) int {
	if f == nil {
		return -1
	}
	fd := int(f.Fd())
	_ = syscall.SetNonblock(fd, true)
	return fd
}

// Pid returns the child's process id, or -1 after Shutdown.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil || p.reaped {
		return -1
	}
	return p.cmd.Process.Pid
}

// CloseWrite closes the method's stdin. For methods that need cleanup time
// this is the agreed termination signal.
func (p *Process) CloseWrite() {
	if p.out != nil {
		p.out.Close()
		p.out = nil
	}
}

// Shutdown terminates the method and reaps it. Methods that advertised
// Needs-Cleanup get their stdin closed and time to finish; everything else
// receives SIGINT. The child is collected exactly once either way.
func (p *Process) Shutdown(needsCleanup bool) {
	if p.in != nil {
		p.in.Close()
		p.in = nil
	}
	p.CloseWrite()
	if p.reaped {
		return
	}
	if !needsCleanup {
		_ = p.cmd.Process.Signal(syscall.SIGINT)
	}
	_ = p.cmd.Wait()
	p.reaped = true
}

// Reap collects the child without sending a signal, keeping its exit status
// visible. Used after an unexpected method death so the error the child
// printed is not masked by a kill of our own.
func (p *Process) Reap() error {
	if p.reaped {
		return nil
	}
	p.reaped = true
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("method %s exited: %v", p.access, err)
	}
	return nil
}

// DropPipes closes both parent ends without touching the child.
func (p *Process) DropPipes() {
	if p.in != nil {
		p.in.Close()
		p.in = nil
	}
	p.CloseWrite()
}
