package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"streamscribe/internal/logger"
	"streamscribe/internal/types"
)

// Result is the audio artifact of one extraction. Callers must invoke
// Cleanup on every exit path; the whole temp dir goes with it.
type Result struct {
	AudioPath string
	SizeBytes int64
	tempDir   string
}

// Path returns the location of the extracted audio file.
func (r *Result) Path() string { return r.AudioPath }

// Size returns the artifact size in bytes.
func (r *Result) Size() int64 { return r.SizeBytes }

// Cleanup removes the temporary directory holding the audio artifact.
func (r *Result) Cleanup() error {
	if r == nil || r.tempDir == "" {
		return nil
	}
	if err := os.RemoveAll(r.tempDir); err != nil {
		return err
	}
	r.tempDir = ""
	return nil
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.String(), errb.String(), err
}

// Extractor downloads the audio track of a video URL into a per-run temp dir
// using an external tool (yt-dlp by default).
type Extractor struct {
	Bin     string
	TempDir string
	runner  commandRunner
}

func New(bin, tempDir string) *Extractor {
	return &Extractor{Bin: bin, TempDir: tempDir, runner: execRunner{}}
}

// Audio runs the extraction tool against the URL. Tool failure of any kind
// maps to ErrAudioExtraction; the temp dir is removed before returning an
// error so nothing leaks on the failure path.
func (e *Extractor) Audio(ctx context.Context, sourceURL string) (*Result, error) {
	log := logger.New().WithField("component", "extract").WithField("url", sourceURL)

	dir, err := os.MkdirTemp(e.TempDir, "scribe-audio-*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %v", types.ErrAudioExtraction, err)
	}
	outPath := filepath.Join(dir, "audio.mp3")

	args := []string{
		"-x", "--audio-format", "mp3",
		"--no-playlist",
		"-o", outPath,
		sourceURL,
	}
	log.Info("running audio extraction")
	_, stderr, err := e.runner.Run(ctx, e.Bin, args...)
	if err != nil {
		os.RemoveAll(dir)
		log.WithError(err).WithField("stderr", stderr).Error("extraction tool failed")
		return nil, fmt.Errorf("%w: %v", types.ErrAudioExtraction, err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: no audio artifact produced", types.ErrAudioExtraction)
	}

	log.WithField("size_bytes", info.Size()).Info("audio extracted")
	return &Result{AudioPath: outPath, SizeBytes: info.Size(), tempDir: dir}, nil
}
