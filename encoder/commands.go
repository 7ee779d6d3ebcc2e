package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// EncodeWebP runs cwebp with o.Method as the compression method.
func EncodeWebP(ctx context.Context, in, out string, o EncodeOptions) error {
	method := o.Method
	if method < 0 || method > 6 {
		method = 4
	}
	args := []string{
		"-quiet",
		"-q", fmt.Sprint(o.Quality),
		"-m", fmt.Sprint(method),
		"-alpha_q", "100",
		in, "-o", out,
	}
	return run(ctx, "cwebp", args...)
}

func EncodeAVIF(ctx context.Context, in, out string, o EncodeOptions) error {
	args := []string{
		"-q", fmt.Sprint(o.Quality),
		"--speed", fmt.Sprint(o.Speed),
		in, out,
	}
	return run(ctx, "avifenc", args...)
}

func EncodeJXL(ctx context.Context, in, out string, o EncodeOptions) error {
	effort := o.Effort
	if effort < 1 || effort > 9 {
		effort = 7
	}
	args := []string{
		in, out,
		"-q", fmt.Sprint(o.Quality),
		"-e", fmt.Sprint(effort),
	}
	return run(ctx, "cjxl", args...)
}

// run executes name and folds its stderr into the returned error.
func run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
