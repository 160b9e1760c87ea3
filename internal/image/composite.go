package image

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Composite lays panels out left to right on a fixed-size canvas.
type Composite struct {
	Width     int
	Height    int
	Panels    []*Panel
	BackColor color.Color
}

// Panel places an image at a horizontal offset, scaled to Width by the
// canvas height when its size differs.
type Panel struct {
	Image   image.Image
	OffsetX int
	Width   int
}

// NewComposite creates a new Composite with the specified dimensions.
func NewComposite(width, height int) *Composite {
	return &Composite{
		Width:     width,
		Height:    height,
		BackColor: color.Black,
	}
}

// AddPanel adds img at offsetX occupying width pixels.
func (c *Composite) AddPanel(img image.Image, offsetX, width int) {
	c.Panels = append(c.Panels, &Panel{Image: img, OffsetX: offsetX, Width: width})
}

// Render produces the final composited image.
func (c *Composite) Render() *image.RGBA {
	result := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(result, result.Bounds(), &image.Uniform{C: c.BackColor}, image.Point{}, draw.Src)

	for _, p := range c.Panels {
		if p.Image == nil {
			continue
		}
		dst := image.Rect(p.OffsetX, 0, p.OffsetX+p.Width, c.Height)
		sb := p.Image.Bounds()
		if sb.Dx() == p.Width && sb.Dy() == c.Height {
			draw.Draw(result, dst, p.Image, sb.Min, draw.Src)
			continue
		}
		draw.CatmullRom.Scale(result, dst, p.Image, sb, draw.Src, nil)
	}
	return result
}

// SideBySide concatenates two images of the same height horizontally.
func SideBySide(left, right image.Image) *image.RGBA {
	lb, rb := left.Bounds(), right.Bounds()
	c := NewComposite(lb.Dx()+rb.Dx(), lb.Dy())
	c.AddPanel(left, 0, lb.Dx())
	c.AddPanel(right, lb.Dx(), rb.Dx())
	return c.Render()
}
