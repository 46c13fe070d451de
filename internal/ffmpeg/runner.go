package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Process is a started ffmpeg invocation.
type Process interface {
	// Wait blocks until the process exits and its output has been drained.
	Wait() error
	// Kill terminates the process immediately.
	Kill() error
}

// Runner abstracts process startup for testability.
type Runner interface {
	Start(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) (Process, error)
}

type commandRunner struct{}

func (commandRunner) Start(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) (Process, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	proc := &commandProcess{cmd: cmd}
	proc.wg.Add(2)
	go proc.scan(stdout, onStdout)
	go proc.scan(stderr, onStderr)
	return proc, nil
}

type commandProcess struct {
	cmd     *exec.Cmd
	wg      sync.WaitGroup
	once    sync.Once
	scanErr error
}

func (p *commandProcess) scan(r io.Reader, forward func(string)) {
	defer p.wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if forward != nil {
			forward(scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		p.once.Do(func() {
			p.scanErr = err
		})
	}
}

func (p *commandProcess) Wait() error {
	p.wg.Wait()
	if p.scanErr != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
		return fmt.Errorf("scan output: %w", p.scanErr)
	}
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

func (p *commandProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
