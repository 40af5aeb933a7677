package testexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/logging"
)

// DefaultTimeout bounds one test run.
const DefaultTimeout = 10 * time.Minute

// Options configures a ShellRunner.
type Options struct {
	Timeout time.Duration
	// Shell runs the command as Shell -c command.
	Shell string
	// Env is appended to the inherited environment.
	Env []string
	// Parser extracts failures. Defaults to ParserFor(command).
	Parser Parser
	Logger logging.Logger
}

// ShellRunner implements core.TestRunner with a shell command.
type ShellRunner struct {
	opts Options
}

var _ core.TestRunner = (*ShellRunner)(nil)

// NewShellRunner creates a ShellRunner.
func NewShellRunner(optFns ...func(o *Options)) *ShellRunner {
	opts := Options{
		Timeout: DefaultTimeout,
		Shell:   "sh",
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &ShellRunner{opts: opts}
}

// RunTests implements core.TestRunner.
func (r *ShellRunner) RunTests(ctx context.Context, repoRoot, command string) (core.RunResult, error) {
	if strings.TrimSpace(command) == "" {
		return core.RunResult{}, errors.New("empty test command")
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeoutCause(ctx, r.opts.Timeout, core.ErrTimeout)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(runCtx, r.opts.Shell, "-c", command)
	cmd.Dir = repoRoot
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	if len(r.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), r.opts.Env...)
	}

	killGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	output := stdout.String() + "\n" + stderr.String()

	if errors.Is(context.Cause(runCtx), core.ErrTimeout) && ctx.Err() == nil {
		r.opts.Logger.Warn("Test run timed out", "command", command, "timeout", r.opts.Timeout)

		return core.RunResult{
			Success:  false,
			Output:   fmt.Sprintf("TIMEOUT after %s\n%s", r.opts.Timeout, output),
			Failures: []core.Failure{{Message: "timeout", Excerpt: tail(output, 2000)}},
		}, nil
	}

	if ctx.Err() != nil {
		return core.RunResult{}, ctx.Err()
	}

	exitCode := 0

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return core.RunResult{}, fmt.Errorf("run %q: %w", command, err)
		}

		exitCode = exitErr.ExitCode()
	}

	res := core.RunResult{Success: exitCode == 0, Output: output, Failures: []core.Failure{}}

	if !res.Success {
		parser := r.opts.Parser
		if parser == nil {
			parser = ParserFor(command)
		}

		res.Failures = parser(output, repoRoot)
		if len(res.Failures) == 0 {
			res.Failures = []core.Failure{{
				Message: fmt.Sprintf("test command exited with status %d", exitCode),
				Excerpt: tail(output, 2000),
			}}
		}
	}

	r.opts.Logger.Info("Test run finished",
		"command", command, "success", res.Success, "exit_code", exitCode,
		"failures", len(res.Failures), "duration", time.Since(start))

	return res, nil
}

// tail returns at most n trailing bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}

	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}

	return s[start:]
}
