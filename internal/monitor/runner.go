package monitor

import (
	"context"
	"os/exec"
	"time"

	"github.com/valyala/bytebufferpool"
)

// waitDelay bounds how long Run waits for output pipes after the process
// was killed, in case a forked child still holds them open.
const waitDelay = 100 * time.Millisecond

// CommandRunner runs an external command to completion and returns what it
// wrote. The process must be killed when ctx is done.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec. On cancellation the whole process
// group is killed where the platform supports it.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	outBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(outBuf)
	errBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(errBuf)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = outBuf
	cmd.Stderr = errBuf
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)
	err := cmd.Run()

	// the pooled buffers are reused after return
	stdout := append([]byte(nil), outBuf.B...)
	stderr := append([]byte(nil), errBuf.B...)
	return stdout, stderr, err
}
