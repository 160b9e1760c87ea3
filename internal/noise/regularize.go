// Package noise implements the decorrelation penalty and re-normalization
// applied to the generator's per-layer noise buffers during projection.
package noise

import (
	"math"
	"sort"

	"pose-projector/pkg/tensor"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinPoolSide is the side length at which the multi-scale pyramid stops.
const MinPoolSide = 8

// Regularize returns the summed autocorrelation penalty over all buffers and
// its gradient with respect to each buffer. Each buffer is scored at its
// own resolution and then at successive 2x2 average-pooled resolutions down
// to and including the first scale whose height is at most MinPoolSide. At
// every scale the penalty adds the squared mean of the buffer multiplied by
// itself circularly shifted one pixel along each spatial axis.
func Regularize(bufs map[string]*tensor.Tensor) (float64, map[string]*tensor.Tensor) {
	names := make([]string, 0, len(bufs))
	for n := range bufs {
		names = append(names, n)
	}
	sort.Strings(names)

	var total float64
	grads := make(map[string]*tensor.Tensor, len(bufs))
	for _, n := range names {
		loss, grad := regularizeOne(bufs[n])
		total += loss
		grads[n] = grad
	}
	return total, grads
}

func regularizeOne(buf *tensor.Tensor) (float64, *tensor.Tensor) {
	var (
		loss  float64
		grads []*tensor.Tensor
		backs []tensor.BackwardFunc
	)
	x := buf
	for {
		l, g := shiftPenalty(x)
		loss += l
		grads = append(grads, g)
		if _, h, _ := x.Dims(); h <= MinPoolSide {
			break
		}
		pooled, back := tensor.HalfPool(x)
		backs = append(backs, back)
		x = pooled
	}

	g := grads[len(grads)-1]
	for s := len(backs) - 1; s >= 0; s-- {
		g = backs[s](g).Add(grads[s])
	}
	return loss, g
}

// shiftPenalty returns mean(x*roll(x,1,W))^2 + mean(x*roll(x,1,H))^2 and its
// gradient.
func shiftPenalty(x *tensor.Tensor) (float64, *tensor.Tensor) {
	n := float64(x.Len())
	grad := x.ZerosLike()
	var loss float64
	for _, axis := range []int{2, 1} {
		fwd := tensor.Roll(x, axis, 1)
		m := floats.Dot(x.Data, fwd.Data) / n
		loss += m * m
		grad.AddScaled(2*m/n, fwd).AddScaled(2*m/n, tensor.Roll(x, axis, -1))
	}
	return loss, grad
}

// Normalize shifts buf to zero mean and scales it to unit mean square, in
// place. A constant buffer is left at zero.
func Normalize(buf *tensor.Tensor) {
	mean := stat.Mean(buf.Data, nil)
	for i := range buf.Data {
		buf.Data[i] -= mean
	}
	if ms := buf.MeanSquare(); ms > 0 {
		buf.Scale(1 / math.Sqrt(ms))
	}
}
