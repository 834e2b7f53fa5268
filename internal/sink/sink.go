// Package sink feeds raw livestream bytes into an external encoder process
// that remuxes them into a container file with stream copy.
package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"eufy-bridge/internal/logging"
)

var log = logging.MustGetLogger("sink")

// DefaultCloseTimeout bounds how long Close waits for the encoder to exit.
const DefaultCloseTimeout = 2 * time.Second

// ErrSinkWrite is returned when writing to an encoder that has exited.
var ErrSinkWrite = errors.New("sink write failed")

// Sink accepts raw chunks for one recording.
type Sink interface {
	Write(p []byte) error
	// Close finalizes the file. It reports whether the encoder had to be killed.
	Close() (killed bool)
	// Abort kills the encoder so a Write stuck on a stalled encoder returns.
	// Unlike the other methods it may be called from any goroutine.
	Abort()
	Path() string
	Bytes() int64
}

// Opener spawns a Sink writing to path.
type Opener interface {
	Open(path string) (Sink, error)
}

// Encoder opens sinks backed by an ffmpeg-compatible binary.
type Encoder struct {
	// Binary is the encoder executable, "ffmpeg" when empty.
	Binary string
	// CloseTimeout bounds graceful shutdown, DefaultCloseTimeout when zero.
	CloseTimeout time.Duration
	// Args builds the argument list for an output path. DefaultArgs when nil.
	Args func(path string) []string
}

// DefaultArgs reads an elementary stream from stdin and stream-copies it into
// a fragmented container so the file stays playable if writing stops early.
func DefaultArgs(path string) []string {
	args := []string{"-y", "-loglevel", "error", "-i", "pipe:0", "-c", "copy"}
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "mp4", "m4v":
		args = append(args, "-f", "mp4", "-movflags", "frag_keyframe+empty_moov")
	case "mov":
		args = append(args, "-f", "mov", "-movflags", "frag_keyframe+empty_moov")
	case "mkv":
		args = append(args, "-f", "matroska")
	}
	return append(args, path)
}

// Open implements Opener.
func (e Encoder) Open(path string) (Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create records dir: %w", err)
	}
	binary := e.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	argsFor := e.Args
	if argsFor == nil {
		argsFor = DefaultArgs
	}
	timeout := e.CloseTimeout
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}

	cmd := exec.Command(binary, argsFor(path)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn encoder %s: %w", binary, err)
	}
	log.Debugf("encoder pid %d writing %s", cmd.Process.Pid, path)

	p := &Process{
		path:    path,
		cmd:     cmd,
		stdin:   stdin,
		timeout: timeout,
		exited:  make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

// Process is a running encoder.
type Process struct {
	path    string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	timeout time.Duration

	exited  chan struct{}
	waitErr error
	aborted atomic.Bool

	mu     sync.Mutex
	bytes  int64
	closed bool
	killed bool
}

func (p *Process) wait() {
	p.waitErr = p.cmd.Wait()
	close(p.exited)
}

// Path implements Sink.
func (p *Process) Path() string { return p.path }

// Bytes implements Sink.
func (p *Process) Bytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytes
}

// Exited closes once the encoder process has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Write forwards p to the encoder. The pipe is unbuffered, so the call
// returns once the encoder has taken the bytes.
func (p *Process) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: sink closed", ErrSinkWrite)
	}
	select {
	case <-p.exited:
		return fmt.Errorf("%w: encoder exited: %v", ErrSinkWrite, p.waitErr)
	default:
	}
	if len(b) == 0 {
		return nil
	}
	n, err := p.stdin.Write(b)
	p.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	return nil
}

// Close closes the encoder input, waits up to the close timeout for it to
// finish the file and kills it otherwise. The process is always reaped.
func (p *Process) Close() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.killed
	}
	p.closed = true

	if err := p.stdin.Close(); err != nil {
		log.Debugf("close encoder stdin: %v", err)
	}
	select {
	case <-p.exited:
	case <-time.After(p.timeout):
		log.Warningf("encoder did not exit within %s, killing pid %d", p.timeout, p.cmd.Process.Pid)
		if err := p.cmd.Process.Kill(); err != nil {
			log.Warningf("kill encoder: %v", err)
		}
		<-p.exited
		p.killed = true
	}
	if p.aborted.Load() {
		p.killed = true
	}
	return p.killed
}

// Abort kills a running encoder and closes its input without taking the
// write lock, which a blocked Write holds. Close still has to be called.
func (p *Process) Abort() {
	select {
	case <-p.exited:
		return
	default:
	}
	if !p.aborted.CompareAndSwap(false, true) {
		return
	}
	log.Warningf("aborting encoder pid %d for %s", p.cmd.Process.Pid, p.path)
	if err := p.cmd.Process.Kill(); err != nil {
		log.Debugf("kill encoder: %v", err)
	}
	if err := p.stdin.Close(); err != nil {
		log.Debugf("close encoder stdin: %v", err)
	}
}
