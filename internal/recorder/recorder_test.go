package recorder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxtrigger/internal/recorder"
)

// writeThenWait writes a marker to the clip and records until interrupted.
const writeThenWait = `sh -c 'printf RIFF > "$0"; exec sleep 30' {output}`

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st, err := os.Stat(path); err == nil && st.Size() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("clip %s was never written", path)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
		opts    []recorder.Option
	}{
		{"empty", "", nil},
		{"only spaces", "   ", nil},
		{"no output placeholder", "arecord -f S16_LE out.wav", nil},
		{"unterminated quote", `arecord "{output}`, nil},
		{"bad rate", "arecord {output}", []recorder.Option{recorder.WithSampleRate(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := recorder.New(tt.command, tt.opts...); err == nil {
				t.Fatalf("New(%q): expected error", tt.command)
			}
		})
	}
}

func TestCommand_Placeholders(t *testing.T) {
	t.Parallel()
	r, err := recorder.New(`arecord -r {rate} --file={output} "my device"`, recorder.WithSampleRate(22050))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := r.Command("/tmp/a.wav")
	want := []string{"arecord", "-r", "22050", "--file=/tmp/a.wav", "my device"}
	if !slices.Equal(got, want) {
		t.Errorf("Command() = %q, want %q", got, want)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r, err := recorder.New(writeThenWait, recorder.WithDir(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if filepath.Dir(rec.Path()) != dir || !strings.HasPrefix(filepath.Base(rec.Path()), "voxtrigger-") {
		t.Errorf("unexpected clip path %q", rec.Path())
	}
	waitForFile(t, rec.Path())

	start := time.Now()
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if took := time.Since(start); took > 3*time.Second {
		t.Errorf("Stop took %v, want the process interrupted promptly", took)
	}
	select {
	case <-rec.Done():
	default:
		t.Error("Done not closed after Stop")
	}
	if err := rec.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}

	if err := rec.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(rec.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("clip still present after Remove: %v", err)
	}
	if err := rec.Remove(); err != nil {
		t.Errorf("Remove of missing clip: %v", err)
	}
}

func TestStop_NoAudio(t *testing.T) {
	t.Parallel()
	r, err := recorder.New(`sh -c 'echo "no capture device" >&2; exit 1' {output}`, recorder.WithDir(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-rec.Done()

	err = rec.Stop()
	if !errors.Is(err, recorder.ErrNoAudio) {
		t.Fatalf("Stop error = %v, want ErrNoAudio", err)
	}
	if !strings.Contains(err.Error(), "no capture device") {
		t.Errorf("error should carry stderr, got: %v", err)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	t.Parallel()
	r, err := recorder.New("voxtrigger-no-such-recorder {output}", recorder.WithDir(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Start(context.Background()); err == nil {
		t.Fatal("expected start error for missing binary")
	}
}

func TestRecord_Duration(t *testing.T) {
	t.Parallel()
	r, err := recorder.New(writeThenWait, recorder.WithDir(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec, err := r.Record(context.Background(), 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	defer rec.Remove()
	if rec.Duration() < 300*time.Millisecond {
		t.Errorf("Duration() = %v, want at least 300ms", rec.Duration())
	}
	data, err := os.ReadFile(rec.Path())
	if err != nil {
		t.Fatalf("read clip: %v", err)
	}
	if string(data) != "RIFF" {
		t.Errorf("clip = %q, want RIFF", data)
	}
}

func TestRecord_CommandExitsEarly(t *testing.T) {
	t.Parallel()
	r, err := recorder.New(`sh -c 'echo "$1" > "$0"' {output} {rate}`, recorder.WithDir(t.TempDir()), recorder.WithSampleRate(8000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	rec, err := r.Record(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	defer rec.Remove()
	if time.Since(start) > 10*time.Second {
		t.Error("Record did not return when the command exited")
	}
	data, _ := os.ReadFile(rec.Path())
	if strings.TrimSpace(string(data)) != "8000" {
		t.Errorf("clip = %q, want substituted rate", data)
	}
}

func TestRecord_Cancelled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r, err := recorder.New(writeThenWait, recorder.WithDir(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	rec, err := r.Record(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Record error = %v, want DeadlineExceeded", err)
	}
	if rec != nil {
		t.Error("expected no recording on cancellation")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial clip left behind: %v", entries)
	}
}
