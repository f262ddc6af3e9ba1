package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/rs/zerolog/log"
)

// ErrConversionFailed is returned when an uploaded payload could not be
// converted to the canonical PCM format.
var ErrConversionFailed = errors.New("audio conversion failed")

// Format is the canonical PCM format the decoder expects: little-endian
// signed 16-bit mono.
type Format struct {
	SampleRate int
	Channels   int
}

// Converter turns an arbitrary audio container/codec into canonical PCM.
type Converter interface {
	ToCanonicalPCM(ctx context.Context, data []byte) ([]byte, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(ctx context.Context, data []byte) ([]byte, error)

func (f ConverterFunc) ToCanonicalPCM(ctx context.Context, data []byte) ([]byte, error) {
	return f(ctx, data)
}

// FFmpegConverter shells out to an external conversion command (ffmpeg by
// default) over stdin/stdout pipes. Valid WAV input is decoded in-process
// without spawning the tool.
type FFmpegConverter struct {
	cmd    []string
	format Format
}

// NewFFmpegConverter parses the configured command line. The command is the
// tool plus base arguments; input/output arguments are appended per call.
func NewFFmpegConverter(command string, format Format) (*FFmpegConverter, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse converter command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("converter command is empty")
	}
	if format.SampleRate <= 0 {
		format.SampleRate = 16000
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	return &FFmpegConverter{cmd: args, format: format}, nil
}

func (c *FFmpegConverter) ToCanonicalPCM(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrConversionFailed)
	}

	// WAV fast path: decode and resample in-process.
	if samples, sr, err := DecodeWAV(data); err == nil {
		if sr != c.format.SampleRate {
			samples = ResampleLinear(samples, sr, c.format.SampleRate)
		}
		return Float32ToPCM16(samples), nil
	}

	args := append([]string{}, c.cmd[1:]...)
	args = append(args,
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(c.format.Channels),
		"-ar", strconv.Itoa(c.format.SampleRate),
		"pipe:1",
	)
	cmd := exec.CommandContext(ctx, c.cmd[0], args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Warn().Err(err).Str("stderr", stderr.String()).Msg("conversion command failed")
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	out := stdout.Bytes()
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: converter produced no audio", ErrConversionFailed)
	}
	return out, nil
}
