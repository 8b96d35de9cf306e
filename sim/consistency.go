package sim

import (
	"fmt"
	"math"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	tracker "github.com/utexas-bwi/dynamic-tracker"
	"github.com/utexas-bwi/dynamic-tracker/rand"
)

// Tracker is a tracking filter which exposes its innovation sequence.
type Tracker interface {
	tracker.Filter
	// Innovation returns the innovation of the latest update
	Innovation() mat.Vector
	// InnovationCov returns the innovation covariance of the latest update
	InnovationCov() mat.Symmetric
}

// NEES returns the Normalized Estimation Error Squared of the estimate est
// against the true state truth. A consistent filter keeps NEES chi-square
// distributed with as many degrees of freedom as the state has dimensions.
// It returns error if the dimensions do not match or the estimate covariance
// is singular.
func NEES(truth mat.Vector, est tracker.Estimate) (float64, error) {
	if truth == nil || est == nil {
		return 0, fmt.Errorf("invalid NEES inputs: truth %v, est %v", truth, est)
	}

	if truth.Len() != est.Val().Len() {
		return 0, fmt.Errorf("NEES dimension mismatch: truth %d, est %d", truth.Len(), est.Val().Len())
	}

	e := mat.NewVecDense(truth.Len(), nil)
	e.SubVec(truth, est.Val())

	pinv := &mat.Dense{}
	if err := pinv.Inverse(est.Cov()); err != nil {
		return 0, fmt.Errorf("failed to invert estimate covariance: %v", err)
	}

	return mat.Inner(e, pinv, e), nil
}

// NIS returns the Normalized Innovation Squared of innovation inn with
// innovation covariance innCov. A consistent filter keeps NIS chi-square
// distributed with as many degrees of freedom as the measurement has
// dimensions.
// It returns error if the dimensions do not match or innCov is singular.
func NIS(inn mat.Vector, innCov mat.Symmetric) (float64, error) {
	if inn == nil || innCov == nil {
		return 0, fmt.Errorf("invalid NIS inputs: inn %v, innCov %v", inn, innCov)
	}

	if inn.Len() != innCov.SymmetricDim() {
		return 0, fmt.Errorf("NIS dimension mismatch: inn %d, innCov %d", inn.Len(), innCov.SymmetricDim())
	}

	sinv := &mat.Dense{}
	if err := sinv.Inverse(innCov); err != nil {
		return 0, fmt.Errorf("failed to invert innovation covariance: %v", err)
	}

	return mat.Inner(inn, sinv, inn), nil
}

// RMSE returns the per component root mean squared error of the estimates
// est against the truth states.
// It returns error if the lengths do not match or the slices are empty.
func RMSE(truth []*mat.VecDense, est []tracker.Estimate) ([]float64, error) {
	if len(truth) == 0 || len(truth) != len(est) {
		return nil, fmt.Errorf("RMSE length mismatch: truth %d, est %d", len(truth), len(est))
	}

	nx := truth[0].Len()
	acc := make([]float64, nx)
	for k := range truth {
		e := mat.NewVecDense(nx, nil)
		e.SubVec(truth[k], est[k].Val())
		for i := 0; i < nx; i++ {
			acc[i] += e.AtVec(i) * e.AtVec(i)
		}
	}

	floats.Scale(1/float64(len(truth)), acc)
	for i := range acc {
		acc[i] = math.Sqrt(acc[i])
	}

	return acc, nil
}

// MonteCarlo runs repeated tracking experiments over independently simulated
// trajectories and aggregates filter consistency statistics.
type MonteCarlo struct {
	// Motion propagates the simulated truth
	Motion tracker.MotionModel
	// Obs measures the simulated truth
	Obs tracker.ObservationModel
	// Init is the nominal initial condition; per run truth starts are
	// drawn from a Gaussian centered on it with its covariance
	Init tracker.InitCond
	// Times are the simulation timestamps; the filter is initialized at
	// Times[0] and updated at every later timestamp
	Times []float64
	// ProcNoise corrupts the truth propagation
	ProcNoise tracker.Noise
	// MeasNoise corrupts the measurements
	MeasNoise tracker.Noise
	// Runs is the number of independent runs
	Runs int
	// Alpha is the two sided significance level of the acceptance bounds.
	// Values outside (0,1) default to 0.05.
	Alpha float64
}

// Consistency aggregates run averaged filter consistency statistics.
type Consistency struct {
	// NEES is the run averaged NEES per update step
	NEES []float64
	// NIS is the run averaged NIS per update step
	NIS []float64
	// NEESLow and NEESHigh bound the run averaged NEES of a consistent filter
	NEESLow, NEESHigh float64
	// NISLow and NISHigh bound the run averaged NIS of a consistent filter
	NISLow, NISHigh float64
	// Spread is the covariance of the final state errors across the runs
	Spread *mat.SymDense
}

// Run simulates mc.Runs independent trajectories, tracks each of them with
// the filter f and returns the aggregated consistency statistics.
// It returns error if the configuration is invalid or any simulation,
// filter or statistics step fails.
func (mc *MonteCarlo) Run(f Tracker) (*Consistency, error) {
	if f == nil {
		return nil, fmt.Errorf("invalid filter: %v", f)
	}

	if mc.Motion == nil || mc.Obs == nil || mc.Init == nil {
		return nil, fmt.Errorf("invalid Monte Carlo configuration")
	}

	if mc.Runs <= 0 {
		return nil, fmt.Errorf("invalid number of runs: %d", mc.Runs)
	}

	steps := len(mc.Times) - 1
	if steps < 1 {
		return nil, fmt.Errorf("invalid number of timestamps: %d", len(mc.Times))
	}

	alpha := mc.Alpha
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}

	nx, _ := mc.Motion.Dims()
	_, nz := mc.Obs.Dims()

	// per run truth starts scattered around the nominal initial state
	draws, err := rand.WithCovN(mc.Init.Cov(), mc.Runs)
	if err != nil {
		return nil, fmt.Errorf("failed to draw initial states: %v", err)
	}

	nees := make([][]float64, steps)
	nis := make([][]float64, steps)
	for k := 0; k < steps; k++ {
		nees[k] = make([]float64, mc.Runs)
		nis[k] = make([]float64, mc.Runs)
	}
	finalErr := mat.NewDense(nx, mc.Runs, nil)

	for run := 0; run < mc.Runs; run++ {
		x0 := mat.NewVecDense(nx, nil)
		x0.AddVec(mc.Init.State(), draws.ColView(run))

		traj, err := NewTrajectory(mc.Motion, mc.Obs, NewInitCond(x0, mc.Init.Cov()), mc.Times, mc.ProcNoise, mc.MeasNoise)
		if err != nil {
			return nil, fmt.Errorf("run %d simulation failed: %v", run, err)
		}

		// the filter starts at the nominal mean: its initial covariance
		// matches the actual scatter of the truth starts
		if err := f.Initialize(mc.Init.State(), mc.Init.Cov(), mc.Times[0]); err != nil {
			return nil, fmt.Errorf("run %d initialization failed: %v", run, err)
		}

		var est tracker.Estimate
		for k := 1; k <= steps; k++ {
			est, err = f.Update(traj.Measurements[k], mc.Times[k])
			if err != nil {
				return nil, fmt.Errorf("run %d update %d failed: %v", run, k, err)
			}

			nees[k-1][run], err = NEES(traj.States[k], est)
			if err != nil {
				return nil, fmt.Errorf("run %d NEES %d failed: %v", run, k, err)
			}

			nis[k-1][run], err = NIS(f.Innovation(), f.InnovationCov())
			if err != nil {
				return nil, fmt.Errorf("run %d NIS %d failed: %v", run, k, err)
			}
		}

		e := mat.NewVecDense(nx, nil)
		e.SubVec(traj.States[steps], est.Val())
		finalErr.SetCol(run, mat.Col(nil, 0, e))
	}

	spread, err := matrix.Cov(finalErr, "cols")
	if err != nil {
		return nil, fmt.Errorf("failed to calculate final error covariance: %v", err)
	}

	c := &Consistency{
		NEES:   make([]float64, steps),
		NIS:    make([]float64, steps),
		Spread: spread,
	}
	for k := 0; k < steps; k++ {
		c.NEES[k] = stat.Mean(nees[k], nil)
		c.NIS[k] = stat.Mean(nis[k], nil)
	}

	// the run averaged statistic of a consistent filter scaled by the
	// number of runs is chi-square distributed
	runs := float64(mc.Runs)
	neesDist := distuv.ChiSquared{K: runs * float64(nx)}
	c.NEESLow = neesDist.Quantile(alpha/2) / runs
	c.NEESHigh = neesDist.Quantile(1-alpha/2) / runs

	nisDist := distuv.ChiSquared{K: runs * float64(nz)}
	c.NISLow = nisDist.Quantile(alpha/2) / runs
	c.NISHigh = nisDist.Quantile(1-alpha/2) / runs

	return c, nil
}
