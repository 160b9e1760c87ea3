// Package render writes projection outputs: the progress video, PNG
// snapshots and the projected latent code.
package render

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"pose-projector/internal/npz"

	"github.com/dustin/go-humanize"
	"gocv.io/x/gocv"
)

// VideoFPS is the frame rate of the progress video.
const VideoFPS = 10

// VideoCodec is the fourcc used for the progress video.
const VideoCodec = "avc1"

// SavePNG writes img to path.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// SaveLatent writes the broadcast code ws ([NumWs][WDim]) as a float32
// "w" array shaped [1, NumWs, WDim].
func SaveLatent(path string, ws [][]float64) error {
	if len(ws) == 0 {
		return fmt.Errorf("no latent code to save")
	}
	dim := len(ws[0])
	data := make([]float64, 0, len(ws)*dim)
	for _, w := range ws {
		data = append(data, w...)
	}
	return npz.Write(path, map[string]npz.Array{
		"w": {Shape: []int{1, len(ws), dim}, Data: data},
	})
}

// FileSize returns a human-readable size of the file at path, or "?" when
// it cannot be read.
func FileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return humanize.Bytes(uint64(info.Size()))
}

// Video writes frames of a fixed size to a video file.
type Video struct {
	path   string
	width  int
	height int
	writer *gocv.VideoWriter
	frames int
}

// NewVideo opens path for writing width x height color frames.
func NewVideo(path string, width, height int) (*Video, error) {
	w, err := gocv.VideoWriterFile(path, VideoCodec, VideoFPS, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open video writer: %w", err)
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("failed to open video writer for %s", path)
	}
	return &Video{path: path, width: width, height: height, writer: w}, nil
}

// Write appends one frame. Frames must match the video size.
func (v *Video) Write(frame *image.RGBA) error {
	b := frame.Bounds()
	if b.Dx() != v.width || b.Dy() != v.height {
		return fmt.Errorf("frame is %dx%d, video is %dx%d", b.Dx(), b.Dy(), v.width, v.height)
	}
	if b.Min != (image.Point{}) || frame.Stride != 4*b.Dx() {
		frame = compact(frame)
	}

	mat, err := gocv.NewMatFromBytes(v.height, v.width, gocv.MatTypeCV8UC4, frame.Pix)
	if err != nil {
		return fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)

	if err := v.writer.Write(bgr); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", v.frames, err)
	}
	v.frames++
	return nil
}

// Frames returns the number of frames written.
func (v *Video) Frames() int {
	return v.frames
}

// Close finalizes the video file.
func (v *Video) Close() error {
	return v.writer.Close()
}

func compact(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*b.Dx()], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return dst
}
