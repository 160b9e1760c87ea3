package tensor

// span returns the source interval [start, end) that output index i covers
// when resampling n source cells into m output cells.
func span(i, n, m int) (int, int) {
	start := (i * n) / m
	end := ((i+1)*n + m - 1) / m
	return start, end
}

// AreaResize resamples a [C, H, W] tensor to [C, outH, outW] by averaging
// the source cells covered by each output cell (adaptive average pooling).
// The returned BackwardFunc distributes output gradients evenly back over
// the covered cells.
func AreaResize(t *Tensor, outH, outW int) (*Tensor, BackwardFunc) {
	c, h, w := t.Dims()
	out := New(c, outH, outW)
	if len(t.Shape) == 2 {
		out = New(outH, outW)
	}
	for ch := 0; ch < c; ch++ {
		for oy := 0; oy < outH; oy++ {
			y0, y1 := span(oy, h, outH)
			for ox := 0; ox < outW; ox++ {
				x0, x1 := span(ox, w, outW)
				var sum float64
				for y := y0; y < y1; y++ {
					row := (ch*h + y) * w
					for x := x0; x < x1; x++ {
						sum += t.Data[row+x]
					}
				}
				out.Data[(ch*outH+oy)*outW+ox] = sum / float64((y1-y0)*(x1-x0))
			}
		}
	}

	shape := append([]int(nil), t.Shape...)
	backward := func(grad *Tensor) *Tensor {
		in := New(shape...)
		for ch := 0; ch < c; ch++ {
			for oy := 0; oy < outH; oy++ {
				y0, y1 := span(oy, h, outH)
				for ox := 0; ox < outW; ox++ {
					x0, x1 := span(ox, w, outW)
					g := grad.Data[(ch*outH+oy)*outW+ox] / float64((y1-y0)*(x1-x0))
					for y := y0; y < y1; y++ {
						row := (ch*h + y) * w
						for x := x0; x < x1; x++ {
							in.Data[row+x] += g
						}
					}
				}
			}
		}
		return in
	}
	return out, backward
}

// HalfPool averages non-overlapping 2x2 blocks, halving each spatial side.
// An odd trailing row or column is dropped and receives no gradient.
func HalfPool(t *Tensor) (*Tensor, BackwardFunc) {
	c, h, w := t.Dims()
	oh, ow := h/2, w/2
	out := New(c, oh, ow)
	if len(t.Shape) == 2 {
		out = New(oh, ow)
	}
	for ch := 0; ch < c; ch++ {
		for oy := 0; oy < oh; oy++ {
			top := (ch*h + 2*oy) * w
			bottom := top + w
			for ox := 0; ox < ow; ox++ {
				x := 2 * ox
				sum := t.Data[top+x] + t.Data[top+x+1] + t.Data[bottom+x] + t.Data[bottom+x+1]
				out.Data[(ch*oh+oy)*ow+ox] = sum / 4
			}
		}
	}

	shape := append([]int(nil), t.Shape...)
	backward := func(grad *Tensor) *Tensor {
		in := New(shape...)
		for ch := 0; ch < c; ch++ {
			for oy := 0; oy < oh; oy++ {
				top := (ch*h + 2*oy) * w
				bottom := top + w
				for ox := 0; ox < ow; ox++ {
					g := grad.Data[(ch*oh+oy)*ow+ox] / 4
					x := 2 * ox
					in.Data[top+x] += g
					in.Data[top+x+1] += g
					in.Data[bottom+x] += g
					in.Data[bottom+x+1] += g
				}
			}
		}
		return in
	}
	return out, backward
}

// FitWithin downsamples t so that its larger spatial side does not exceed
// limit, preserving aspect ratio. Tensors already within the limit are
// returned unchanged with an identity backward.
func FitWithin(t *Tensor, limit int) (*Tensor, BackwardFunc) {
	_, h, w := t.Dims()
	if h <= limit && w <= limit {
		return t, func(grad *Tensor) *Tensor { return grad }
	}
	outH, outW := limit, limit
	if h > w {
		outW = max(1, w*limit/h)
	} else if w > h {
		outH = max(1, h*limit/w)
	}
	return AreaResize(t, outH, outW)
}
