package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/wagiedev/agentrpc-go/internal/cli"
	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
	"github.com/wagiedev/agentrpc-go/internal/transport"
)

// maxStderrBufferSize caps the stderr kept for error reporting. The callback
// still receives every line past the cap.
const maxStderrBufferSize = 1024 * 1024

// waitDelay bounds how long Wait waits for the child's pipes after it exits.
const waitDelay = 2 * time.Second

// Process implements Transport by spawning the agent as a child process.
type Process struct {
	log            *slog.Logger
	options        *config.Options
	agentPath      string
	args           []string
	cmd            *exec.Cmd
	stream         *transport.Stream
	stderr         io.ReadCloser
	stderrCallback func(string)

	mu      sync.Mutex // Protects cmd, stream and closing
	closing bool       // Whether Close() has been called (intentional shutdown)

	stderrMu  sync.Mutex
	stderrBuf strings.Builder
}

// Compile-time verification that Process implements the Transport interface.
var _ config.Transport = (*Process)(nil)

// NewProcess creates a process transport. Agent discovery is deferred to
// Start, which searches for the binary in the following order:
//  1. The explicit path in options.AgentPath (if provided)
//  2. The system PATH
//  3. Common installation directories (/usr/local/bin, /usr/bin, ~/.local/bin)
//
// Start returns *errors.AgentNotFoundError if the binary cannot be located.
func NewProcess(log *slog.Logger, options *config.Options) *Process {
	options = options.WithDefaults()

	return &Process{
		log:            log.With("component", "process_transport"),
		options:        options,
		stderrCallback: options.Stderr,
	}
}

// Start discovers the agent binary and spawns it.
//
// The child is killed when ctx is cancelled.
func (p *Process) Start(ctx context.Context) error {
	p.log.Info("Starting agent subprocess")

	discoverer := cli.NewDiscoverer(&cli.Config{
		AgentPath: p.options.AgentPath,
		Logger:    p.log,
	})

	agentPath, err := discoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover agent: %w", err)
	}

	p.agentPath = agentPath
	p.args = cli.BuildArgs(p.options)
	p.log.Debug("Built command arguments", "args", p.args)

	cwd := p.options.Cwd
	if cwd == "" {
		cwd, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	//nolint:gosec // G204: the agent path comes from discovery
	cmd := exec.CommandContext(ctx, p.agentPath, p.args...)
	cmd.Dir = cwd
	cmd.Env = cli.BuildEnvironment(p.options)
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &errors.TransportError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &errors.TransportError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &errors.TransportError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		p.log.Error("Failed to start agent process", "error", err)

		return &errors.TransportError{Err: fmt.Errorf("start process: %w", err)}
	}

	framer := transport.NewFramer(p.options.Framing, p.options.MaxFrameSize)

	p.mu.Lock()
	p.cmd = cmd
	p.stderr = stderr
	p.stream = transport.NewStream(p.log, stdout, stdin, framer)
	p.mu.Unlock()

	p.log.Info("Agent subprocess started", "pid", cmd.Process.Pid, "agent_path", p.agentPath)

	return nil
}

// ReadFrames reads frames from the child's stdout.
//
// When stdout ends the child is reaped. An abnormal exit that was not caused
// by Close is reported as *errors.ProcessError carrying the buffered stderr.
func (p *Process) ReadFrames(ctx context.Context) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errs := make(chan error, 1)

	p.mu.Lock()
	stream, cmd := p.stream, p.cmd
	p.mu.Unlock()

	if stream == nil {
		errs <- errors.ErrTransportNotConnected

		close(frames)
		close(errs)

		return frames, errs
	}

	// Stderr must be fully read before Wait; see exec.Cmd.StderrPipe.
	var stderrWg sync.WaitGroup

	stderrWg.Go(p.readStderr)

	inner, innerErrs := stream.ReadFrames(ctx)

	go func() {
		defer close(errs)
		defer close(frames)
		defer p.log.Debug("ReadFrames goroutine stopped")

		for frame := range inner {
			select {
			case frames <- frame:
			case <-ctx.Done():
			}
		}

		streamErr := <-innerErrs

		stderrWg.Wait()

		p.log.Debug("Waiting for agent process to exit")

		waitErr := cmd.Wait()

		if p.isClosing() {
			p.log.Debug("Agent process terminated during shutdown")

			return
		}

		if waitErr != nil {
			exitCode := -1
			if exitErr, ok := stderrors.AsType[*exec.ExitError](waitErr); ok {
				exitCode = exitErr.ExitCode()
			}

			stderrOutput := p.stderrOutput()

			p.log.Error("Agent process exited with error", "exit_code", exitCode, "stderr", stderrOutput)

			errs <- &errors.ProcessError{ExitCode: exitCode, Stderr: stderrOutput, Err: waitErr}

			return
		}

		p.log.Info("Agent process exited")

		if streamErr != nil {
			errs <- streamErr
		}
	}()

	return frames, errs
}

// readStderr forwards stderr lines to the callback and buffers them.
func (p *Process) readStderr() {
	scanner := bufio.NewScanner(p.stderr)

	for scanner.Scan() {
		line := scanner.Text()

		p.stderrMu.Lock()

		if p.stderrBuf.Len() < maxStderrBufferSize {
			if p.stderrBuf.Len() > 0 {
				p.stderrBuf.WriteString("\n")
			}

			p.stderrBuf.WriteString(line)
		}

		p.stderrMu.Unlock()

		if p.stderrCallback != nil {
			p.stderrCallback(line)
		}
	}

	if err := scanner.Err(); err != nil {
		p.log.Debug("Stderr scanner error", "error", err)
	}
}

func (p *Process) stderrOutput() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()

	return cleanStderr(p.stderrBuf.String())
}

// SendFrame writes one frame to the child's stdin.
func (p *Process) SendFrame(ctx context.Context, frame []byte) error {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()

	if stream == nil {
		return errors.ErrTransportNotConnected
	}

	return stream.SendFrame(ctx, frame)
}

// Close closes the child's pipes and kills it. It's safe to call Close
// multiple times or on an already-terminated process.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closing {
		return nil
	}

	p.closing = true

	var errs []error

	if p.stream != nil {
		errs = append(errs, p.stream.Close())
	}

	// Unblocks the stderr reader when a grandchild still holds the pipe.
	if p.stderr != nil {
		_ = p.stderr.Close()
	}

	if p.cmd != nil && p.cmd.Process != nil {
		p.log.Debug("Killing agent process", "pid", p.cmd.Process.Pid)

		if err := p.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill agent process (pid %d): %w", p.cmd.Process.Pid, err))
		}
	}

	return stderrors.Join(errs...)
}

func (p *Process) isClosing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closing
}

// cleanStderr drops source context lines ("1234 | <code>") that script
// runtimes print around a stack trace.
func cleanStderr(stderr string) string {
	if stderr == "" {
		return ""
	}

	var cleaned strings.Builder

	for line := range strings.SplitSeq(stderr, "\n") {
		if isSourceContextLine(strings.TrimSpace(line)) {
			continue
		}

		if cleaned.Len() > 0 {
			cleaned.WriteString("\n")
		}

		cleaned.WriteString(line)
	}

	return strings.TrimSpace(cleaned.String())
}

// isSourceContextLine reports whether line has the form "<digits> | <code>".
func isSourceContextLine(line string) bool {
	pipeIdx := strings.Index(line, "|")
	if pipeIdx < 1 {
		return false
	}

	prefix := strings.TrimSpace(line[:pipeIdx])
	if prefix == "" {
		return false
	}

	for _, ch := range prefix {
		if ch < '0' || ch > '9' {
			return false
		}
	}

	return true
}
