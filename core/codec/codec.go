package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

var (
	// ErrCompression marks a failed compress or decompress step.
	ErrCompression = errors.New("compression failed")
	// ErrChecksum marks a failed checksum of the original content.
	ErrChecksum = errors.New("checksum failed")
)

// Codec turns a file into a compressed file and back.
type Codec interface {
	Compress(ctx context.Context, src, dst string) error
	Decompress(ctx context.Context, src, dst string) error
	// Ext is the file extension of compressed artifacts, including the dot.
	Ext() string
}

// New returns the codec named by kind: "zstd" (in process) or "exec" (the zstd binary).
func New(kind string, threads, nice int) (Codec, error) {
	switch kind {
	case "zstd", "":
		return &Zstd{Threads: threads}, nil
	case "exec":
		return &Exec{Binary: "zstd", Nice: nice, Threads: threads}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", kind)
	}
}

// Zstd compresses in process with klauspost/compress.
type Zstd struct {
	// Threads is the encoder/decoder concurrency. Zero lets the library choose.
	Threads int
}

func (z *Zstd) Ext() string { return ".zst" }

func (z *Zstd) Compress(ctx context.Context, src, dst string) error {
	// An empty input still yields a frame, so artifacts are never zero length.
	opts := []zstd.EOption{zstd.WithZeroFrames(true)}
	if z.Threads > 0 {
		opts = append(opts, zstd.WithEncoderConcurrency(z.Threads))
	}
	return transcode(ctx, src, dst, func(w io.Writer, r io.Reader) error {
		enc, err := zstd.NewWriter(w, opts...)
		if err != nil {
			return err
		}
		if _, err := io.Copy(enc, r); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	})
}

func (z *Zstd) Decompress(ctx context.Context, src, dst string) error {
	var opts []zstd.DOption
	if z.Threads > 0 {
		opts = append(opts, zstd.WithDecoderConcurrency(z.Threads))
	}
	return transcode(ctx, src, dst, func(w io.Writer, r io.Reader) error {
		dec, err := zstd.NewReader(r, opts...)
		if err != nil {
			return err
		}
		defer dec.Close()
		_, err = io.Copy(w, dec)
		return err
	})
}

func transcode(ctx context.Context, src, dst string, fn func(w io.Writer, r io.Reader) error) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := fn(out, &ctxReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Exec runs the zstd binary, optionally under nice.
type Exec struct {
	Binary  string
	Nice    int
	Threads int
}

func (e *Exec) Ext() string { return ".zst" }

func (e *Exec) Compress(ctx context.Context, src, dst string) error {
	return e.run(ctx, src, "-o", dst)
}

func (e *Exec) Decompress(ctx context.Context, src, dst string) error {
	return e.run(ctx, "--decompress", src, "-o", dst)
}

func (e *Exec) run(ctx context.Context, args ...string) error {
	argv := []string{e.Binary, "--force", "--quiet"}
	if e.Threads > 0 {
		argv = append(argv, "--threads="+strconv.Itoa(e.Threads))
	}
	argv = append(argv, args...)
	if e.Nice != 0 {
		argv = append([]string{"nice", "-n", strconv.Itoa(e.Nice)}, argv...)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
