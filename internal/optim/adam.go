// Package optim provides the adaptive-moment optimizer used to update the
// latent code and noise buffers.
package optim

import (
	"fmt"
	"math"
)

// Param is one trainable tensor, stored flat.
type Param struct {
	Name  string
	Value []float64
}

// Adam implements the Adam update rule over a fixed parameter list.
type Adam struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64

	params []Param
	m      [][]float64
	v      [][]float64
	step   int
}

// NewAdam creates an optimizer for params with zeroed moment estimates.
func NewAdam(params []Param, beta1, beta2 float64) *Adam {
	a := &Adam{
		Beta1:   beta1,
		Beta2:   beta2,
		Epsilon: 1e-8,
		params:  params,
		m:       make([][]float64, len(params)),
		v:       make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Value))
		a.v[i] = make([]float64, len(p.Value))
	}
	return a
}

// Params returns the parameter list in optimizer order.
func (a *Adam) Params() []Param {
	return a.params
}

// Steps returns the number of updates applied.
func (a *Adam) Steps() int {
	return a.step
}

// Step applies one update with learning rate lr. grads must be aligned with
// the parameter list; a nil entry is treated as a zero gradient.
func (a *Adam) Step(lr float64, grads [][]float64) error {
	if len(grads) != len(a.params) {
		return fmt.Errorf("got %d gradients for %d parameters", len(grads), len(a.params))
	}
	a.step++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for i, p := range a.params {
		g := grads[i]
		if g != nil && len(g) != len(p.Value) {
			return fmt.Errorf("gradient for %s has %d values, want %d", p.Name, len(g), len(p.Value))
		}
		m, v := a.m[i], a.v[i]
		for j := range p.Value {
			var gj float64
			if g != nil {
				gj = g[j]
			}
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*gj
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*gj*gj
			denom := math.Sqrt(v[j])/math.Sqrt(bc2) + a.Epsilon
			p.Value[j] -= lr / bc1 * m[j] / denom
		}
	}
	return nil
}
