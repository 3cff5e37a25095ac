package executable

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/logfields"
)

// maxLineSize bounds a single output line; rustc can print very long ones.
const maxLineSize = 1 << 20

// LineFunc receives one output line without its trailing newline.
type LineFunc func(line string)

// Command describes one subprocess invocation.
type Command struct {
	Program string
	Args    []string
	Dir     string
	// Env is added on top of the current process environment, for the
	// subprocess only.
	Env map[string]string
	// Hint is shown to the user when Program cannot be found.
	Hint string
}

// String renders the command line for logs and error context.
func (c Command) String() string {
	return strings.TrimSpace(c.Program + " " + strings.Join(c.Args, " "))
}

// Output is the captured result of a finished command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs commands. Implementations must deliver each stream's lines in
// order and call the sinks from the goroutine that called RunLive.
type Runner interface {
	RunLive(ctx context.Context, cmd Command, onStdout, onStderr LineFunc) (*Output, error)
}

// Run executes cmd without live sinks.
func Run(ctx context.Context, r Runner, cmd Command) (*Output, error) {
	return r.RunLive(ctx, cmd, nil, nil)
}

// Exec is the Runner backed by os/exec.
type Exec struct {
	logger *slog.Logger
}

// NewExec creates an os/exec runner logging through logger (slog.Default when nil).
func NewExec(logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exec{logger: logger}
}

type streamID int

const (
	streamStdout streamID = iota
	streamStderr
)

type lineEvent struct {
	stream streamID
	text   string
}

// RunLive implements Runner.
func (e *Exec) RunLive(ctx context.Context, c Command, onStdout, onStderr LineFunc) (*Output, error) {
	program, err := exec.LookPath(c.Program)
	if err != nil {
		return nil, berrors.CommandNotFound(c.Program, c.Hint)
	}

	// #nosec G204 -- program resolved via LookPath, args assembled by the builder
	cmd := exec.CommandContext(ctx, program, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), c.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	e.logger.Debug("Running command", logfields.Command(c.String()), logfields.Path(c.Dir))
	if err := cmd.Start(); err != nil {
		return nil, berrors.CommandNotFound(c.Program, c.Hint).WithContext("cause", err.Error())
	}

	events := make(chan lineEvent, 64)
	var readers sync.WaitGroup
	var readErrs [2]error
	readers.Add(2)
	go func() {
		defer readers.Done()
		readErrs[streamStdout] = scanLines(stdout, streamStdout, events)
	}()
	go func() {
		defer readers.Done()
		readErrs[streamStderr] = scanLines(stderr, streamStderr, events)
	}()
	go func() {
		readers.Wait()
		close(events)
	}()

	var outBuf, errBuf strings.Builder
	for ev := range events {
		switch ev.stream {
		case streamStdout:
			outBuf.WriteString(ev.text)
			outBuf.WriteByte('\n')
			if onStdout != nil {
				onStdout(ev.text)
			}
		case streamStderr:
			errBuf.WriteString(ev.text)
			errBuf.WriteByte('\n')
			if onStderr != nil {
				onStderr(ev.text)
			}
		}
	}

	waitErr := cmd.Wait()
	out := &Output{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if readErr := errors.Join(readErrs[:]...); readErr != nil && ctx.Err() == nil {
		return out, fmt.Errorf("read output of %s: %w", c.Program, readErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, berrors.CommandFailed(c.String(), out.ExitCode, out.Stdout, out.Stderr)
		}
		return out, fmt.Errorf("wait for %s: %w", c.Program, waitErr)
	}
	return out, nil
}

// scanLines sends each line of r to events. A line longer than maxLineSize
// is cut at maxLineSize and the remainder of it dropped; reading continues
// with the next line.
func scanLines(r io.Reader, id streamID, events chan<- lineEvent) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	for {
		chunk, err := reader.ReadSlice('\n')
		if room := maxLineSize - len(line); room > 0 {
			line = append(line, chunk[:min(len(chunk), room)]...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err == nil || len(line) > 0 {
			events <- lineEvent{stream: id, text: trimEOL(line)}
			line = line[:0]
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// Drain whatever is left so the child never blocks on a full pipe.
			_, _ = io.Copy(io.Discard, r)
			return err
		}
	}
}

func trimEOL(line []byte) string {
	return strings.TrimSuffix(strings.TrimSuffix(string(line), "\n"), "\r")
}

// mergeEnv returns base with overrides applied; keys are added in sorted
// order so the resulting environment is deterministic.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(keys))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, overridden := overrides[name]; overridden {
			continue
		}
		env = append(env, kv)
	}
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
