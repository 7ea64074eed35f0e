package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/ii/api-test-harness/internal/types"
	"golang.org/x/sync/errgroup"
)

const stderrTail = 20

// ProcessSpec describes one runner subprocess.
type ProcessSpec struct {
	Args []string
	Dir  string
	Env  []string
}

// LineFunc receives each output line; stream is "stdout" or "stderr".
type LineFunc func(stream, line string)

// Spawner runs a process to completion. A non-nil error is a
// *types.RunnerProcessError.
type Spawner interface {
	Run(spec ProcessSpec, onLine LineFunc) (exitCode int, err error)
}

// ExecSpawner runs processes with os/exec. There is no way to stop a
// process once started.
type ExecSpawner struct{}

func (ExecSpawner) Run(spec ProcessSpec, onLine LineFunc) (int, error) {
	if len(spec.Args) == 0 {
		return -1, &types.RunnerProcessError{ExitCode: -1, Err: errors.New("empty runner command")}
	}
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, &types.RunnerProcessError{ExitCode: -1, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, &types.RunnerProcessError{ExitCode: -1, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return -1, &types.RunnerProcessError{ExitCode: -1, Err: err}
	}

	var (
		mu   sync.Mutex
		tail []string
		g    errgroup.Group
	)
	emit := func(stream, line string) {
		mu.Lock()
		defer mu.Unlock()
		if onLine != nil {
			onLine(stream, line)
		}
	}
	g.Go(func() error {
		return scanLines(stdout, func(line string) { emit("stdout", line) })
	})
	g.Go(func() error {
		return scanLines(stderr, func(line string) {
			emit("stderr", line)
			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}
		})
	})
	scanErr := g.Wait()
	waitErr := cmd.Wait()

	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		msg := waitErr.Error()
		if len(tail) > 0 {
			msg = fmt.Sprintf("%s\n%s", msg, strings.Join(tail, "\n"))
		}
		return code, &types.RunnerProcessError{ExitCode: code, Err: errors.New(msg)}
	}
	if scanErr != nil {
		return 0, &types.RunnerProcessError{Err: fmt.Errorf("reading runner output: %w", scanErr)}
	}
	return 0, nil
}

func scanLines(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
	return sc.Err()
}
