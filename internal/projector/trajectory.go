package projector

import "pose-projector/internal/model"

// Trajectory is the sequence of latent codes recorded after each step.
// Every code is shared by all NumWs synthesis layers.
type Trajectory struct {
	Steps [][]float64
	NumWs int
}

// Len returns the number of recorded steps.
func (t *Trajectory) Len() int {
	return len(t.Steps)
}

// At returns the code recorded after step i broadcast to [NumWs][WDim].
func (t *Trajectory) At(i int) [][]float64 {
	return model.Broadcast(t.Steps[i], t.NumWs)
}

// Last returns the final broadcast code, or nil for an empty trajectory.
func (t *Trajectory) Last() [][]float64 {
	if len(t.Steps) == 0 {
		return nil
	}
	return t.At(len(t.Steps) - 1)
}
