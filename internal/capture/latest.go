package capture

import (
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Latest holds the most recent frame. The pipeline stores every frame it
// reads; the calibration worker and the preview stream take copies.
type Latest struct {
	mu  sync.Mutex
	mat gocv.Mat
	at  time.Time
	seq uint64
}

// NewLatest returns an empty holder.
func NewLatest() *Latest {
	return &Latest{mat: gocv.NewMat()}
}

// Store copies frame into the holder.
func (l *Latest) Store(frame *gocv.Mat, at time.Time) {
	if frame == nil || frame.Empty() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	frame.CopyTo(&l.mat)
	l.at = at
	l.seq++
}

// Clone returns a copy of the latest frame and its capture time. The caller
// must close the Mat. ok is false when no frame was stored yet.
func (l *Latest) Clone() (gocv.Mat, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mat.Empty() {
		return gocv.NewMat(), time.Time{}, false
	}
	return l.mat.Clone(), l.at, true
}

// Seq returns a counter that increases with every stored frame.
func (l *Latest) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// JPEG encodes the latest frame.
func (l *Latest) JPEG(quality int) ([]byte, error) {
	mat, _, ok := l.Clone()
	defer mat.Close()
	if !ok {
		return nil, ErrNoFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	data := buf.GetBytes()
	if len(data) == 0 {
		return nil, errors.New("jpeg encoding produced no data")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Close releases the stored frame.
func (l *Latest) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mat.Close()
	l.mat = gocv.NewMat()
}
