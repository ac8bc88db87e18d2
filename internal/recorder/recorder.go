// Package recorder captures microphone audio by running an external command
// such as arecord or sox. The command writes a WAV file whose path is
// substituted for the {output} placeholder; recording ends when the process
// is interrupted.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"
)

// ErrNoAudio is returned when the capture command produced no audio file.
var ErrNoAudio = errors.New("recorder: no audio captured")

const (
	// PlaceholderOutput is replaced by the clip path.
	PlaceholderOutput = "{output}"

	// PlaceholderRate is replaced by the sample rate in Hz.
	PlaceholderRate = "{rate}"

	defaultRate  = 16000
	defaultGrace = 2 * time.Second
)

// Option is a functional option for [New].
type Option func(*Recorder)

// WithDir sets where clips are written. Defaults to [os.TempDir].
func WithDir(dir string) Option {
	return func(r *Recorder) {
		if dir != "" {
			r.dir = dir
		}
	}
}

// WithSampleRate sets the value substituted for {rate}. Defaults to 16000.
func WithSampleRate(hz int) Option {
	return func(r *Recorder) { r.rate = hz }
}

// WithGrace sets how long a stopped command may take to finalise the file
// before it is killed. Defaults to 2 s.
func WithGrace(d time.Duration) Option {
	return func(r *Recorder) { r.grace = d }
}

// Recorder starts capture processes from a command template. It is safe for
// concurrent use; each [Recorder.Start] produces an independent clip.
type Recorder struct {
	args  []string
	dir   string
	rate  int
	grace time.Duration
}

// New parses command, a shell-quoted template that must contain {output}.
func New(command string, opts ...Option) (*Recorder, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("recorder: parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("recorder: command is empty")
	}
	if !strings.Contains(strings.Join(args, " "), PlaceholderOutput) {
		return nil, fmt.Errorf("recorder: command %q has no %s placeholder", command, PlaceholderOutput)
	}

	r := &Recorder{
		args:  args,
		dir:   os.TempDir(),
		rate:  defaultRate,
		grace: defaultGrace,
	}
	for _, o := range opts {
		o(r)
	}
	if r.rate <= 0 {
		return nil, fmt.Errorf("recorder: sample rate %d must be positive", r.rate)
	}
	return r, nil
}

// Command returns the argv that would record to path.
func (r *Recorder) Command(path string) []string {
	rp := strings.NewReplacer(PlaceholderOutput, path, PlaceholderRate, strconv.Itoa(r.rate))
	out := make([]string, len(r.args))
	for i, a := range r.args {
		out[i] = rp.Replace(a)
	}
	return out
}

// Start launches the capture command writing to a fresh clip path. The
// process runs until [Recording.Stop], until it exits by itself, or until
// ctx is done.
func (r *Recorder) Start(ctx context.Context) (*Recording, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create clip dir: %w", err)
	}
	path := filepath.Join(r.dir, "voxtrigger-"+uuid.NewString()+".wav")
	argv := r.Command(path)

	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	// Interrupt rather than kill so the tool can finalise the WAV header.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = r.grace

	rec := &Recording{
		path:    path,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	cmd.Stderr = &rec.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("recorder: start %q: %w", argv[0], err)
	}
	slog.Debug("recorder: started", "path", path, "pid", cmd.Process.Pid)

	go func() {
		rec.waitErr = cmd.Wait()
		close(rec.done)
	}()
	return rec, nil
}

// Record captures for d, or until ctx is done, and returns the finished
// clip. On cancellation the partial clip is removed and ctx's error
// returned.
func (r *Recorder) Record(ctx context.Context, d time.Duration) (*Recording, error) {
	rec, err := r.Start(ctx)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-rec.Done():
	case <-ctx.Done():
	}

	serr := rec.Stop()
	if err := ctx.Err(); err != nil {
		rec.Remove()
		return nil, err
	}
	if serr != nil {
		rec.Remove()
		return nil, serr
	}
	return rec, nil
}

// Recording is one running or finished capture.
type Recording struct {
	path     string
	cancel   context.CancelFunc
	done     chan struct{}
	waitErr  error
	stderr   lockedBuffer
	started  time.Time
	duration time.Duration
	stopOnce sync.Once
	stopErr  error
}

// Path is the clip file.
func (rec *Recording) Path() string { return rec.path }

// Done is closed when the capture process has exited.
func (rec *Recording) Done() <-chan struct{} { return rec.done }

// Duration is the wall time between start and stop.
func (rec *Recording) Duration() time.Duration { return rec.duration }

// Stop interrupts the capture process, waits for it and checks that a
// non-empty clip was written. Exit statuses caused by the interrupt are not
// errors. Stop is idempotent.
func (rec *Recording) Stop() error {
	rec.stopOnce.Do(func() {
		rec.cancel()
		<-rec.done
		rec.duration = time.Since(rec.started)

		st, err := os.Stat(rec.path)
		if err != nil || st.Size() == 0 {
			msg := strings.TrimSpace(rec.stderr.String())
			rec.stopErr = fmt.Errorf("%w: %s (exit: %v, stderr: %q)", ErrNoAudio, rec.path, rec.waitErr, msg)
			return
		}
		if rec.waitErr != nil {
			slog.Debug("recorder: capture exited", "path", rec.path, "err", rec.waitErr)
		}
	})
	return rec.stopErr
}

// Remove deletes the clip. A missing file is not an error.
func (rec *Recording) Remove() error {
	if err := os.Remove(rec.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("recorder: remove clip: %w", err)
	}
	return nil
}

// lockedBuffer keeps the last stderr output of a capture process.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

const maxStderr = 4 << 10

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, _ := b.buf.Write(p)
	if over := b.buf.Len() - maxStderr; over > 0 {
		b.buf.Next(over)
	}
	return n, nil
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
