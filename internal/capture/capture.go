package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	// ErrCaptureUnavailable indicates the platform capture source cannot
	// be reached at all (device scripts not run, pipe missing).
	ErrCaptureUnavailable = errors.New("capture source unavailable")

	// ErrHandleAcquisition indicates the source exists but a handle could
	// not be acquired for this session.
	ErrHandleAcquisition = errors.New("capture handle acquisition failed")
)

// Handle is a single-use, per-session stream of mono 16-bit PCM frames.
// The frame channel is closed when the underlying stream ends or the
// handle is closed.
type Handle interface {
	Frames() <-chan []int16
	Close() error
}

// Source acquires capture handles. Acquisition is a suspension point
// and honors ctx cancellation.
type Source interface {
	Acquire(ctx context.Context) (Handle, error)
}

// PipeSource reads raw little-endian 16-bit mono PCM from a named pipe
// (or any file path) fed by the out-of-scope platform capture scripts.
type PipeSource struct {
	Path string
	// FrameSize is the number of samples delivered per frame.
	FrameSize int
}

// NewPipeSource creates a source reading frameSize-sample frames from path.
func NewPipeSource(path string, frameSize int) *PipeSource {
	if frameSize <= 0 {
		frameSize = 1600 // 100ms at 16kHz
	}
	return &PipeSource{Path: path, FrameSize: frameSize}
}

// Acquire opens the pipe and starts streaming frames. Opening a FIFO
// blocks until a writer attaches, so the open runs under ctx.
func (s *PipeSource) Acquire(ctx context.Context) (Handle, error) {
	if _, err := os.Stat(s.Path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCaptureUnavailable, s.Path, err)
	}

	type openResult struct {
		f   *os.File
		err error
	}
	opened := make(chan openResult, 1)
	go func() {
		f, err := os.OpenFile(s.Path, os.O_RDONLY, 0)
		opened <- openResult{f, err}
	}()

	select {
	case res := <-opened:
		if res.err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrHandleAcquisition, s.Path, res.err)
		}
		h := newPipeHandle(res.f, s.FrameSize)
		go h.run()
		return h, nil
	case <-ctx.Done():
		// Let the open finish in the background and discard the file.
		go func() {
			if res := <-opened; res.err == nil {
				res.f.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %v", ErrHandleAcquisition, ctx.Err())
	}
}

type pipeHandle struct {
	f         *os.File
	frameSize int
	frames    chan []int16
	closeOnce sync.Once
}

func newPipeHandle(f *os.File, frameSize int) *pipeHandle {
	return &pipeHandle{
		f:         f,
		frameSize: frameSize,
		frames:    make(chan []int16, 8),
	}
}

func (h *pipeHandle) run() {
	defer close(h.frames)

	buf := make([]byte, h.frameSize*2)
	for {
		n, err := io.ReadFull(h.f, buf)
		if n >= 2 {
			frame := make([]int16, n/2)
			for i := range frame {
				frame[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			}
			h.frames <- frame
		}
		if err != nil {
			return
		}
	}
}

func (h *pipeHandle) Frames() <-chan []int16 {
	return h.frames
}

func (h *pipeHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.f.Close()
	})
	return err
}

// StreamHandle is an in-memory Handle fed by Push. It backs StreamSource
// and the package's test doubles.
type StreamHandle struct {
	frames    chan []int16
	closeOnce sync.Once
}

// NewStreamHandle creates a handle with the given channel buffer.
func NewStreamHandle(buffer int) *StreamHandle {
	if buffer <= 0 {
		buffer = 8
	}
	return &StreamHandle{frames: make(chan []int16, buffer)}
}

// Push delivers one frame to the handle's consumer. Must not be called
// after Close.
func (h *StreamHandle) Push(frame []int16) {
	h.frames <- frame
}

// Frames returns the frame stream.
func (h *StreamHandle) Frames() <-chan []int16 {
	return h.frames
}

// Close ends the frame stream.
func (h *StreamHandle) Close() error {
	h.closeOnce.Do(func() { close(h.frames) })
	return nil
}

// StreamSource hands out a fixed handle, or a fixed error. Used by
// tests and in-process embedders.
type StreamSource struct {
	Handle Handle
	Err    error
}

// Acquire returns the configured handle or error.
func (s *StreamSource) Acquire(ctx context.Context) (Handle, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Handle == nil {
		return nil, ErrCaptureUnavailable
	}
	return s.Handle, nil
}
