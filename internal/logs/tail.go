package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	pollInterval  = 250 * time.Millisecond
	backwardChunk = 32 * 1024
	maxRecordSize = 1024 * 1024
)

// TailOptions controls Tail. A negative Offset reads the last Limit lines;
// Follow with a positive Wait polls until new lines arrive or Wait elapses.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads complete lines from a run log. A trailing record that is still
// being written is left for the next call. A missing file yields no lines.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat run log: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("run log %q is a directory", path)
	}

	var res TailResult
	if opts.Offset < 0 {
		res, err = lastLines(f, info.Size(), opts.Limit)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// Truncated since the last read.
			offset = 0
		}
		res, err = readFrom(f, offset)
	}
	if err != nil || len(res.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return res, err
	}
	return poll(ctx, f, res.Offset, opts.Wait)
}

// lastLines walks backwards from the end of f in fixed chunks until it has
// seen limit complete lines.
func lastLines(f *os.File, size int64, limit int) (TailResult, error) {
	end := completeEnd(f, size)
	if limit <= 0 || end == 0 {
		return TailResult{Offset: end}, nil
	}

	var tail []byte
	pos := end
	for pos > 0 && bytes.Count(tail, []byte{'\n'}) <= limit {
		n := min(int64(backwardChunk), pos)
		pos -= n
		chunk := make([]byte, n)
		if _, err := f.ReadAt(chunk, pos); err != nil && !errors.Is(err, io.EOF) {
			return TailResult{}, fmt.Errorf("read run log: %w", err)
		}
		tail = append(chunk, tail...)
	}

	lines := splitLines(tail)
	if pos > 0 && len(lines) > 0 {
		// The first line may start before the chunk boundary.
		lines = lines[1:]
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

func readFrom(f *os.File, offset int64) (TailResult, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek run log: %w", err)
	}
	reader := bufio.NewReaderSize(f, 64*1024)
	res := TailResult{Offset: offset}
	for {
		line, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			line, err = readLong(reader, line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			return res, fmt.Errorf("read run log: %w", err)
		}
		res.Offset += int64(len(line))
		res.Lines = append(res.Lines, string(bytes.TrimRight(line, "\r\n")))
	}
}

// readLong finishes a record longer than the reader's buffer.
func readLong(reader *bufio.Reader, prefix []byte) ([]byte, error) {
	buf := append([]byte(nil), prefix...)
	for len(buf) < maxRecordSize {
		more, err := reader.ReadSlice('\n')
		buf = append(buf, more...)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return buf, err
		}
	}
	return nil, fmt.Errorf("record exceeds %d bytes", maxRecordSize)
}

func poll(ctx context.Context, f *os.File, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-deadline.C:
			return TailResult{Offset: offset}, nil
		case <-ticker.C:
		}
		res, err := readFrom(f, offset)
		if err != nil || len(res.Lines) > 0 {
			return res, err
		}
	}
}

// completeEnd returns the offset just past the last newline in f.
func completeEnd(f *os.File, size int64) int64 {
	var b [1]byte
	for end := size; end > 0; end-- {
		if _, err := f.ReadAt(b[:], end-1); err != nil {
			return 0
		}
		if b[0] == '\n' {
			return end
		}
		if size-end > maxRecordSize {
			break
		}
	}
	return 0
}

func splitLines(data []byte) []string {
	data = bytes.TrimSuffix(data, []byte{'\n'})
	if len(data) == 0 {
		return nil
	}
	parts := bytes.Split(data, []byte{'\n'})
	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = string(bytes.TrimRight(p, "\r"))
	}
	return lines
}
