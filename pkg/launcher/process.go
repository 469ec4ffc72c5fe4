package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/hypernet/pkg/log"
	"github.com/cuemby/hypernet/pkg/types"
)

// ProcessLauncher runs every node as a separate hypernode process, started
// with the arguments <label> <dimension> <port>
type ProcessLauncher struct {
	Binary string

	// BindHost is passed as --host; empty keeps the node's default
	BindHost string

	// LogLevel is passed as --log-level when set
	LogLevel string

	// ForwardTimeout is passed as --forward-timeout when positive
	ForwardTimeout time.Duration

	Env []string

	// LogDir, when set, sends each node's output to LogDir/node-<label>.log
	// and detaches the process so it outlives the launcher. Otherwise output
	// is captured in memory.
	LogDir string
}

// NewProcessLauncher creates a launcher for binary
func NewProcessLauncher(binary string) *ProcessLauncher {
	return &ProcessLauncher{Binary: binary}
}

// Args returns the command line for spec, without the binary
func (l *ProcessLauncher) Args(spec Spec) []string {
	args := []string{
		spec.Identity.Label.String(),
		strconv.Itoa(spec.Dimension),
		strconv.Itoa(int(spec.Identity.Addr.Port())),
	}
	if l.BindHost != "" {
		args = append(args, "--host", l.BindHost)
	}
	if spec.AdminAddr != "" {
		args = append(args, "--admin-addr", spec.AdminAddr)
	}
	if l.LogLevel != "" {
		args = append(args, "--log-level", l.LogLevel)
	}
	if l.ForwardTimeout > 0 {
		args = append(args, "--forward-timeout", l.ForwardTimeout.String())
	}
	return args
}

// Launch starts the node process. The process is not tied to ctx; use the
// handle to stop it.
func (l *ProcessLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &Process{
		identity: spec.Identity,
		logs:     &LogBuffer{},
		done:     make(chan struct{}),
	}
	p.cmd = exec.Command(l.Binary, l.Args(spec)...)
	p.cmd.Env = append(os.Environ(), l.Env...)

	var logFile *os.File
	if l.LogDir != "" {
		if err := os.MkdirAll(l.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		path := filepath.Join(l.LogDir, fmt.Sprintf("node-%s.log", spec.Identity.Label))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open node log: %w", err)
		}
		logFile = f
		p.logFile = path
		p.cmd.Stdout = f
		p.cmd.Stderr = f
		// own process group, so the node survives the CLI's terminal
		p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	} else {
		p.cmd.Stdout = p.logs
		p.cmd.Stderr = p.logs
	}

	err := p.cmd.Start()
	if logFile != nil {
		// the child holds its own descriptor
		logFile.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", l.Binary, err)
	}
	p.pid = p.cmd.Process.Pid

	go func() {
		p.waitErr = p.cmd.Wait()
		close(p.done)
	}()

	logger := log.WithLabel("launcher", spec.Identity.Label)
	logger.Debug().
		Int("pid", p.pid).
		Str("addr", spec.Identity.Address()).
		Msg("Node process started")

	return p, nil
}

// Process is a running hypernode process
type Process struct {
	identity types.Identity
	pid      int
	cmd      *exec.Cmd
	logs     *LogBuffer
	logFile  string

	done    chan struct{}
	waitErr error
}

func (p *Process) Identity() types.Identity { return p.identity }
func (p *Process) PID() int                 { return p.pid }
func (p *Process) Done() <-chan struct{}    { return p.done }

// Err returns how the process exited, once Done is closed
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Stop sends SIGTERM and waits for the process to exit, killing it if ctx
// ends first
func (p *Process) Stop(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to send SIGTERM to %d: %w", p.pid, err)
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill %d: %w", p.pid, err)
		}
		<-p.done
		return nil
	}
}

// Logs returns captured output, or the log file's content for detached nodes
func (p *Process) Logs() string {
	if p.logFile != "" {
		data, err := os.ReadFile(p.logFile)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return p.logs.String()
}

// StopPID stops a node process this invocation did not start, as recorded by
// an earlier one. It sends SIGTERM, polls until the process is gone and sends
// SIGKILL if ctx ends first.
func StopPID(ctx context.Context, pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to send SIGTERM to %d: %w", pid, err)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !Alive(pid) {
				return nil
			}
		case <-ctx.Done():
			if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return fmt.Errorf("failed to kill %d: %w", pid, err)
			}
			return nil
		}
	}
}

// Alive reports whether a process with pid exists
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// LogBuffer provides thread-safe log buffering with timestamps. It is an
// io.Writer that stores one entry per complete line.
type LogBuffer struct {
	mu      sync.RWMutex
	lines   []logLine
	partial []byte
}

type logLine struct {
	timestamp time.Time
	content   string
}

// Append adds a log line to the buffer
func (lb *LogBuffer) Append(line string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.append(line)
}

func (lb *LogBuffer) append(line string) {
	lb.lines = append(lb.lines, logLine{
		timestamp: time.Now(),
		content:   line,
	})
}

// Write splits p into lines, holding back a trailing partial line
func (lb *LogBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	data := append(lb.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		lb.append(string(data[:i]))
		data = data[i+1:]
	}
	lb.partial = append([]byte(nil), data...)
	return len(p), nil
}

// String returns all logs as a single string
func (lb *LogBuffer) String() string {
	return lb.Since(time.Time{})
}

// Since returns logs since the given timestamp
func (lb *LogBuffer) Since(since time.Time) string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	var buf []byte
	for _, line := range lb.lines {
		if line.timestamp.After(since) {
			buf = append(buf, line.content...)
			buf = append(buf, '\n')
		}
	}
	return string(buf)
}

// Lines returns the number of log lines
func (lb *LogBuffer) Lines() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.lines)
}
