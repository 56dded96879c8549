package plate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
)

// DebugSink receives rendered debug composites. Writes are best-effort;
// callers log failures and move on.
type DebugSink interface {
	// Write stores data under name and returns the stored location.
	Write(name string, data []byte) (string, error)
}

// DirSink writes debug images into a directory on local disk.
type DirSink struct {
	dir string
}

// NewDirSink creates a sink rooted at dir, creating it if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	return &DirSink{dir: dir}, nil
}

// Write stores data as a file under the sink directory.
func (s *DirSink) Write(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write debug image: %w", err)
	}

	return path, nil
}

type selectedFragment struct {
	fragment  *Fragment
	rightHalf bool
}

// boxColor outlines selected fragments on the composite.
var boxColor = color.RGBA{G: 255, A: 255}

// writeComposite renders the two halves side by side, outlines the selected
// bounding polygons (right-half x coordinates shifted by the left width),
// JPEG-encodes the canvas, and hands it to the sink.
func (a *Assembler) writeComposite(name string, leftImg, rightImg image.Image, selected []selectedFragment) (string, error) {
	lb := leftImg.Bounds()
	rb := rightImg.Bounds()

	width := lb.Dx() + rb.Dx()

	height := lb.Dy()
	if rb.Dy() > height {
		height = rb.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, image.Rect(0, 0, lb.Dx(), lb.Dy()), leftImg, lb.Min, draw.Src)
	draw.Draw(canvas, image.Rect(lb.Dx(), 0, width, rb.Dy()), rightImg, rb.Min, draw.Src)

	for _, sel := range selected {
		shift := 0
		if sel.rightHalf {
			shift = lb.Dx()
		}

		drawPolygon(canvas, sel.fragment.Box, shift)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("encode composite: %w", err)
	}

	return a.sink.Write(name, buf.Bytes())
}

// drawPolygon draws the closed polygon outline with the given x shift.
func drawPolygon(img *image.RGBA, box [][2]float64, shiftX int) {
	n := len(box)
	if n < 2 {
		return
	}

	for i := range n {
		p1 := box[i]
		p2 := box[(i+1)%n]
		drawLine(img,
			int(p1[0])+shiftX, int(p1[1]),
			int(p2[0])+shiftX, int(p2[1]),
		)
	}
}

// drawLine rasterizes a 1px line segment (Bresenham).
func drawLine(img *image.RGBA, x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)

	sx := 1
	if x0 > x1 {
		sx = -1
	}

	sy := 1
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy

	for {
		img.Set(x0, y0, boxColor)

		if x0 == x1 && y0 == y1 {
			return
		}

		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}

		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}

	return n
}
