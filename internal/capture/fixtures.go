package capture

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"
)

var frameExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

// SheetFrame renders a dark scene with a white sheet covering r. It stands
// in for a camera pointed at paper when no camera is available.
func SheetFrame(width, height int, r image.Rectangle) *gocv.Mat {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 30, 30, 0), height, width, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&frame, r, color.RGBA{R: 255, G: 255, B: 255, A: 0}, -1)
	return &frame
}

// DefaultSheet returns the sheet placement used by SheetFrame callers that
// have no preference: centered horizontally in the lower part of the frame.
func DefaultSheet(width, height int) image.Rectangle {
	return image.Rect(width/5, height*5/8, width*4/5, height*29/32)
}

// LoadFrame decodes one image file into a frame.
func LoadFrame(path string) (*gocv.Mat, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("load frame %s: %w", path, ErrNoFrame)
	}
	return &mat, nil
}

// LoadSequence loads every image in dir, ordered by file name, for replay
// through a MockCamera.
func LoadSequence(dir string) ([]*gocv.Mat, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !frameExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	frames := make([]*gocv.Mat, 0, len(names))
	for _, name := range names {
		frame, err := LoadFrame(filepath.Join(dir, name))
		if err != nil {
			// Clean up already loaded frames
			for _, f := range frames {
				f.Close()
			}
			return nil, err
		}
		frames = append(frames, frame)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames in %s: %w", dir, ErrNoFrame)
	}
	return frames, nil
}
