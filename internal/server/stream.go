package server

import (
	"fmt"
	"net/http"
	"time"
)

// FrameSource provides the latest camera frame as JPEG.
type FrameSource interface {
	JPEG(quality int) ([]byte, error)
	// Seq increases with every new frame.
	Seq() uint64
}

// Stream defaults
const (
	streamInterval = 66 * time.Millisecond // ~15 FPS
	streamQuality  = 75
)

// StreamHandler serves the latest frames as MJPEG.
type StreamHandler struct {
	frames   FrameSource
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler over frames.
func NewStreamHandler(frames FrameSource) *StreamHandler {
	return &StreamHandler{frames: frames, interval: streamInterval}
}

// ServeHTTP streams frames until the client goes away. A frame is sent only
// when a new one has been captured.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last uint64
	for {
		if seq := h.frames.Seq(); seq != last {
			data, err := h.frames.JPEG(streamQuality)
			if err == nil {
				if err := writePart(w, data); err != nil {
					return
				}
				last = seq
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
