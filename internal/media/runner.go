// Package media wraps the external audio tools (yt-dlp, ffmpeg) behind a
// narrow process-runner interface.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result is the captured output of one process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout, stderr and exit code.
// The exit code is -1 when the process never produced one.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// CommandLog records one external invocation for diagnostics.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
}

// String renders the invocation as a shell-like line.
func (l CommandLog) String() string {
	return strings.TrimSpace(l.Command + " " + strings.Join(l.Args, " "))
}

// LastStderrLine returns the final non-empty stderr line, which is where
// ffmpeg and yt-dlp put their error summary.
func (l CommandLog) LastStderrLine() string {
	lines := strings.Split(strings.TrimSpace(l.Stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}

// CommandError is a failed external invocation.
type CommandError struct {
	Log CommandLog
	Err error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited %d", e.Log.Command, e.Log.ExitCode)
	if line := e.Log.LastStderrLine(); line != "" {
		msg += ": " + line
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Invoke runs name through r, reports the log to onLog (if set) and returns
// a *CommandError on failure.
func Invoke(ctx context.Context, r Runner, onLog func(CommandLog), name string, args ...string) (CommandLog, error) {
	res, err := r.Run(ctx, name, args...)
	log := CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
	if onLog != nil {
		onLog(log)
	}
	if err != nil {
		return log, &CommandError{Log: log, Err: err}
	}
	return log, nil
}
