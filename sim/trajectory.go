package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	tracker "github.com/utexas-bwi/dynamic-tracker"
	"github.com/utexas-bwi/dynamic-tracker/autodiff"
)

// Trajectory is a simulated system trajectory sampled at fixed timestamps.
type Trajectory struct {
	// Times are the sample timestamps
	Times []float64
	// States are the true system states
	States []*mat.VecDense
	// Outputs are the noise free sensor outputs
	Outputs []*mat.VecDense
	// Measurements are the noise corrupted sensor outputs
	Measurements []*mat.VecDense
}

// NewTrajectory simulates a system which starts at init.State() and is
// observed at the given times. The truth propagates through the motion model
// with process noise drawn from q; the sensor outputs of the observation
// model are corrupted with measurement noise drawn from r. Nil q or r noise
// leaves the propagation or the measurements clean.
// It returns error if any model evaluation fails or the noise dimensions
// do not match the models.
func NewTrajectory(motion tracker.MotionModel, obs tracker.ObservationModel, init tracker.InitCond, times []float64, q, r tracker.Noise) (*Trajectory, error) {
	if motion == nil || obs == nil || init == nil {
		return nil, fmt.Errorf("invalid simulation models: motion %v, obs %v, init %v", motion, obs, init)
	}

	if len(times) == 0 {
		return nil, fmt.Errorf("no simulation times given")
	}

	nx, _ := motion.Dims()
	_, nz := obs.Dims()

	if init.State().Len() != nx {
		return nil, fmt.Errorf("invalid initial state dimension: %d", init.State().Len())
	}

	if q != nil && len(q.Mean()) != nx {
		return nil, fmt.Errorf("invalid process noise dimension: %d", len(q.Mean()))
	}

	if r != nil && len(r.Mean()) != nz {
		return nil, fmt.Errorf("invalid measurement noise dimension: %d", len(r.Mean()))
	}

	traj := &Trajectory{
		Times:        make([]float64, len(times)),
		States:       make([]*mat.VecDense, len(times)),
		Outputs:      make([]*mat.VecDense, len(times)),
		Measurements: make([]*mat.VecDense, len(times)),
	}
	copy(traj.Times, times)

	x := &mat.VecDense{}
	x.CloneFromVec(init.State())

	for k := range times {
		if k > 0 {
			dt := times[k] - times[k-1]
			next, err := autodiff.Eval(tracker.PropagateFunc(motion), x, dt)
			if err != nil {
				return nil, fmt.Errorf("state propagation failed: %v", err)
			}
			x.CloneFromVec(next)
			if q != nil {
				x.AddVec(x, q.Sample())
			}
		}

		state := &mat.VecDense{}
		state.CloneFromVec(x)
		traj.States[k] = state

		y, err := autodiff.Eval(tracker.ObserveFunc(obs), x, times[k])
		if err != nil {
			return nil, fmt.Errorf("state observation failed: %v", err)
		}

		output := &mat.VecDense{}
		output.CloneFromVec(y)
		traj.Outputs[k] = output

		z := &mat.VecDense{}
		z.CloneFromVec(y)
		if r != nil {
			z.AddVec(z, r.Sample())
		}
		traj.Measurements[k] = z
	}

	return traj, nil
}
