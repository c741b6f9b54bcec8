// Package subprocess provides the default broker transport: it spawns the
// shortbus broker in pipe mode and frames line-delimited JSON over its
// stdin/stdout, draining stderr as a diagnostic side channel.
package subprocess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shortbus-io/shortbus-go/internal/broker"
	"github.com/shortbus-io/shortbus-go/internal/config"
	"github.com/shortbus-io/shortbus-go/internal/errors"
)

const (
	// maxScanTokenSize is the maximum buffer size for reading broker output lines.
	maxScanTokenSize = 1024 * 1024 // 1MB
	// maxStderrBufferSize caps the retained stderr buffer. Stderr draining
	// continues past the cap (every line is still logged and forwarded to
	// the callback); only the buffer stops growing.
	maxStderrBufferSize = 1 * 1024 * 1024 // 1MB
)

// PipeTransport implements Transport by spawning a broker subprocess.
type PipeTransport struct {
	log            *slog.Logger
	options        *config.Options
	brokerPath     string
	args           []string
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	stdout         io.ReadCloser
	stderr         io.ReadCloser
	stderrCallback func(string)
	mu             sync.Mutex // Protects stdin writes
	closing        bool       // Whether Close() has been called (intentional shutdown)
	stdinClosed    bool       // Whether stdin was closed
}

// Compile-time verification that PipeTransport implements the Transport interface.
var _ config.Transport = (*PipeTransport)(nil)

// NewPipeTransport creates a new pipe transport with the given options.
//
// Broker discovery is deferred to Start(), which searches for the binary
// in the following order:
//  1. The explicit path in options.BrokerPath (if provided)
//  2. The system PATH
//  3. Common installation directories (/usr/local/bin, /usr/bin, ~/.local/bin)
//
// Start() returns BrokerNotFoundError if the binary cannot be located.
func NewPipeTransport(log *slog.Logger, options *config.Options) *PipeTransport {
	return &PipeTransport{
		log:            log.With("component", "pipe_transport"),
		options:        options,
		stderrCallback: options.Stderr,
	}
}

// Start spawns the broker subprocess.
//
// This method discovers the broker binary and starts it with the configured
// arguments (default "pipe"), environment, and working directory. It sets
// up stdin, stdout, and stderr pipes for communication.
//
// Returns BrokerNotFoundError if the binary cannot be located, or
// ConnectionError if the process fails to start.
func (t *PipeTransport) Start(ctx context.Context) error {
	t.log.Info("Starting broker subprocess")

	discoverer := broker.NewDiscoverer(&broker.Config{
		BrokerPath: t.options.BrokerPath,
		Logger:     t.log,
	})

	brokerPath, err := discoverer.Discover()
	if err != nil {
		return fmt.Errorf("discover broker: %w", err)
	}

	t.brokerPath = brokerPath

	t.args = t.options.BrokerArgs
	if len(t.args) == 0 {
		t.args = []string{"pipe"}
	}

	t.log.Debug("Built broker arguments", "args", t.args)

	//nolint:gosec // G204: Subprocess launching with dynamic args is expected for broker invocation
	cmd := exec.CommandContext(ctx, t.brokerPath, t.args...)
	cmd.Env = buildEnvironment(t.options.Env)

	if t.options.Cwd != "" {
		cmd.Dir = t.options.Cwd
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.log.Error("Failed to create stdin pipe", "error", err)

		return &errors.ConnectionError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	t.stdin = stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.log.Error("Failed to create stdout pipe", "error", err)

		return &errors.ConnectionError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	t.stdout = stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.log.Error("Failed to create stderr pipe", "error", err)

		return &errors.ConnectionError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	t.stderr = stderr

	if err := cmd.Start(); err != nil {
		t.log.Error("Failed to start broker process", "error", err)

		return &errors.ConnectionError{Err: fmt.Errorf("start process: %w", err)}
	}

	t.cmd = cmd
	t.log.Info("Broker subprocess started", "pid", cmd.Process.Pid)

	return nil
}

// ReadMessages reads JSON records from the broker stdout.
//
// This method starts a goroutine that reads line-delimited JSON from the
// broker stdout. Each line is decoded and sent to the messages channel.
// A line that fails to decode is reported on the error channel as a
// *DecodeError and does not stop message processing.
//
// The goroutine exits when the broker process terminates, the context is
// cancelled, or an unrecoverable read fault occurs. Both channels are
// closed when it exits.
//
// A second goroutine drains the broker's stderr, logging each line and
// forwarding it to the configured callback; it never affects the message
// stream.
func (t *PipeTransport) ReadMessages(
	ctx context.Context,
) (<-chan map[string]any, <-chan error) {
	messages := make(chan map[string]any)
	errs := make(chan error, 8)

	var stderrBuffer strings.Builder

	var stderrMu sync.Mutex

	// Supervise the stderr drain so it completes before cmd.Wait().
	// See: https://pkg.go.dev/os/exec#Cmd.StderrPipe
	drain := new(errgroup.Group)

	drain.Go(func() error {
		// Relies on process kill to close the pipe and unblock Scan().
		scanner := bufio.NewScanner(t.stderr)
		for scanner.Scan() {
			line := scanner.Text()

			t.log.Debug("Broker diagnostic", "line", line)

			// Buffer stderr for error reporting (capped at maxStderrBufferSize)
			stderrMu.Lock()

			if stderrBuffer.Len() < maxStderrBufferSize {
				if stderrBuffer.Len() > 0 {
					stderrBuffer.WriteString("\n")
				}

				stderrBuffer.WriteString(line)
			}

			stderrMu.Unlock()

			if t.stderrCallback != nil {
				t.stderrCallback(line)
			}
		}

		// Side-channel faults are swallowed (process may have exited)
		if err := scanner.Err(); err != nil {
			t.log.Debug("Stderr scanner error", "error", err)
		}

		return nil
	})

	go func() {
		defer close(messages)
		defer close(errs)
		defer t.log.Debug("ReadMessages goroutine stopped")

		bufSize := maxScanTokenSize
		if t.options.MaxBufferSize != nil {
			bufSize = *t.options.MaxBufferSize
		}

		scanner := bufio.NewScanner(t.stdout)
		buf := make([]byte, bufSize)
		scanner.Buffer(buf, bufSize)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				t.log.Debug("Context cancelled during scan", "error", ctx.Err())

				errs <- ctx.Err()

				return
			default:
			}

			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var msg map[string]any

			if err := json.Unmarshal(line, &msg); err != nil {
				t.log.Debug("Failed to decode broker line", "error", err, "line", string(line))

				errs <- &errors.DecodeError{
					RawData: string(line),
					Err:     err,
				}

				continue
			}

			select {
			case messages <- msg:
			case <-ctx.Done():
				t.log.Debug("Context cancelled during message send", "error", ctx.Err())

				errs <- ctx.Err()

				return
			}
		}

		if err := scanner.Err(); err != nil {
			t.log.Error("Scanner error while reading broker output", "error", err)

			errs <- fmt.Errorf("scanner error: %w", err)
		}

		// Stderr must be fully drained before Wait()
		_ = drain.Wait()

		t.log.Debug("Waiting for broker process to exit")

		if err := t.cmd.Wait(); err != nil {
			// Check if this is an intentional shutdown
			t.mu.Lock()
			isClosing := t.closing
			t.mu.Unlock()

			if isClosing {
				t.log.Debug("Broker process terminated during shutdown")

				return
			}

			stderrMu.Lock()

			stderrOutput := stderrBuffer.String()

			stderrMu.Unlock()

			exitCode := 0

			if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
				exitCode = exitErr.ExitCode()
			}

			t.log.Error("Broker process exited with error", "exit_code", exitCode, "stderr", stderrOutput)

			errs <- &errors.ProcessError{
				ExitCode: exitCode,
				Stderr:   stderrOutput,
				Err:      err,
			}
		} else {
			t.log.Info("Broker process exited")
		}
	}()

	return messages, errs
}

// SendMessage writes one command to the broker stdin.
//
// The data is written as a single newline-terminated line; writes are
// mutually exclusive across callers so concurrent publishers never
// interleave partial lines. The pipe is unbuffered, so the line is
// visible to the broker as soon as the write returns.
//
// If the context is cancelled during a blocked write, stdin is closed to
// unblock it (safe since Go 1.9+). Subsequent calls return ErrStdinClosed.
func (t *PipeTransport) SendMessage(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdinClosed {
		return errors.ErrStdinClosed
	}

	if t.stdin == nil {
		return errors.ErrTransportNotConnected
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.log.Debug("Sending command to broker", "data_len", len(data))

	// Ensure data ends with a single newline.
	// Explicit copy so a caller's backing array with spare capacity is never mutated.
	if len(data) == 0 || data[len(data)-1] != '\n' {
		newData := make([]byte, len(data)+1)
		copy(newData, data)
		newData[len(data)] = '\n'
		data = newData
	}

	// Write in goroutine to respect context cancellation
	done := make(chan error, 1)

	go func() {
		_, err := t.stdin.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.log.Error("Failed to write command to broker", "error", err)

			return fmt.Errorf("write to stdin: %w", err)
		}

		return nil

	case <-ctx.Done():
		t.log.Debug("Context cancelled during write, closing stdin")

		if t.stdin != nil {
			_ = t.stdin.Close()
			t.stdinClosed = true
		}

		select {
		case <-done:
		case <-time.After(1 * time.Second):
			t.log.Warn("Write goroutine did not exit after stdin close, potential leak")
		}

		return ctx.Err()
	}
}

// EndInput closes the broker's stdin to signal end of input.
//
// The broker processes any pending commands and then exits normally.
func (t *PipeTransport) EndInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdin != nil && !t.stdinClosed {
		t.log.Debug("Closing stdin pipe")

		err := t.stdin.Close()
		t.stdinClosed = true
		t.stdin = nil

		return err
	}

	return nil
}

// Close terminates the broker process.
//
// This forcefully kills the process using SIGKILL. It's safe to call
// Close multiple times or on an already-terminated process.
func (t *PipeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closing = true
	t.stdinClosed = true

	if t.cmd != nil && t.cmd.Process != nil {
		t.log.Debug("Killing broker process", "pid", t.cmd.Process.Pid)

		if err := t.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill broker process (pid %d): %w", t.cmd.Process.Pid, err)
		}
	}

	return nil
}

// buildEnvironment merges extra variables over the current environment.
func buildEnvironment(extra map[string]string) []string {
	env := os.Environ()

	for key, value := range extra {
		env = append(env, key+"="+value)
	}

	return env
}
