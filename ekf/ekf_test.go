package ekf

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	tracker "github.com/utexas-bwi/dynamic-tracker"
	"github.com/utexas-bwi/dynamic-tracker/autodiff"
	"github.com/utexas-bwi/dynamic-tracker/model"
)

type badMotion struct {
	tracker.MotionModel
}

// a motion model must map the state onto itself: 4 in, 3 out is invalid
func (m *badMotion) Dims() (int, int) {
	return 4, 3
}

type flatSensor struct {
	*model.PositionSensor
}

// a constant observation has a zero jacobian: with zero observation noise
// the innovation covariance H*P*H' + R is singular
func (s *flatSensor) Observe(x []autodiff.Dual, t float64) []autodiff.Dual {
	return []autodiff.Dual{autodiff.Const(1.0), autodiff.Const(1.0)}
}

var (
	cvMotion  *model.ConstantVelocity
	posSensor *model.PositionSensor
	ctMotion  *model.CoordinatedTurn
	rbSensor  *model.RangeBearingSensor
	x0        *mat.VecDense
	p0        *mat.SymDense
	z         *mat.VecDense
)

func setup() {
	q := mat.NewSymDense(4, nil)
	r := mat.NewSymDense(2, nil)
	for i := 0; i < 4; i++ {
		q.SetSym(i, i, 1.0)
	}
	for i := 0; i < 2; i++ {
		r.SetSym(i, i, 1.0)
	}

	cvMotion, _ = model.NewConstantVelocity(2, q)
	posSensor, _ = model.NewPositionSensor(4, 2, r)

	qct := mat.NewSymDense(5, nil)
	for i := 0; i < 5; i++ {
		qct.SetSym(i, i, 0.01)
	}
	ctMotion, _ = model.NewCoordinatedTurn(qct)
	rbSensor, _ = model.NewRangeBearing(5, -20, -20, mat.NewSymDense(2, []float64{0.01, 0, 0, 0.0001}))

	x0 = mat.NewVecDense(4, nil)
	p0 = mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		p0.SetSym(i, i, 1.0)
	}

	z = mat.NewVecDense(2, []float64{1.0, 1.0})
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cvMotion, posSensor)
	assert.NotNil(f)
	assert.NoError(err)

	// nil models
	f, err = New(nil, posSensor)
	assert.Nil(f)
	assert.Error(err)

	f, err = New(cvMotion, nil)
	assert.Nil(f)
	assert.Error(err)

	// invalid motion model: state dimensions do not match
	f, err = New(&badMotion{cvMotion}, posSensor)
	assert.Nil(f)
	assert.Error(err)

	// observation model over a different state dimension
	f, err = New(ctMotion, posSensor)
	assert.Nil(f)
	assert.Error(err)
}

func TestSetModels(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cvMotion, posSensor)
	assert.NotNil(f)
	assert.NoError(err)

	// same dimensions are fine
	cv2, err := model.NewConstantVelocity(2, nil)
	assert.NoError(err)
	assert.NoError(f.SetModels(cv2, posSensor))

	// the filter dimensions are fixed at construction
	err = f.SetModels(ctMotion, rbSensor)
	assert.Error(err)

	err = f.SetModels(nil, posSensor)
	assert.Error(err)
}

func TestInitialize(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cvMotion, posSensor)
	assert.NotNil(f)
	assert.NoError(err)

	assert.NoError(f.Initialize(x0, p0, 0.0))
	assert.Equal(0.0, f.Time())

	// invalid state dimension
	err = f.Initialize(mat.NewVecDense(3, nil), p0, 0.0)
	assert.Error(err)

	err = f.Initialize(nil, p0, 0.0)
	assert.Error(err)

	// invalid covariance dimension
	err = f.Initialize(x0, mat.NewSymDense(3, nil), 0.0)
	assert.Error(err)

	err = f.Initialize(x0, nil, 0.0)
	assert.Error(err)

	// initializing again restarts the filter
	est, err := f.Update(z, 0.1)
	assert.NotNil(est)
	assert.NoError(err)

	x1 := mat.NewVecDense(4, []float64{5, 5, 0, 0})
	assert.NoError(f.Initialize(x1, p0, 2.0))
	assert.Equal(2.0, f.Time())
	assert.True(mat.Equal(x1, f.State()))
	assert.True(mat.Equal(p0, f.Covariance()))
	assert.Equal(0.0, mat.Norm(f.Innovation(), 2))
}

func TestUpdateNotInitialized(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cvMotion, posSensor)
	assert.NotNil(f)
	assert.NoError(err)

	est, err := f.Update(z, 0.1)
	assert.Nil(est)
	assert.Equal(ErrNotInitialized, err)
}

func TestUpdate(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cvMotion, posSensor)
	assert.NotNil(f)
	assert.NoError(err)

	assert.NoError(f.Initialize(x0, p0, 0.0))

	est, err := f.Update(z, 0.1)
	assert.NotNil(est)
	assert.NoError(err)

	// closed form posterior for one update from zero state, identity P0,
	// Q and R, measurement [1 1] after dt=0.1:
	// P_pred = F*F' + I, S = H*P_pred*H' + I = diag(3.01),
	// K position rows are 2.01/3.01, velocity rows 0.1/3.01
	posGain := 2.01 / 3.01
	velGain := 0.1 / 3.01

	assert.InDelta(posGain, est.Val().AtVec(0), 1e-12)
	assert.InDelta(posGain, est.Val().AtVec(1), 1e-12)
	assert.InDelta(velGain, est.Val().AtVec(2), 1e-12)
	assert.InDelta(velGain, est.Val().AtVec(3), 1e-12)
	assert.True(mat.Equal(est.Val(), f.State()))

	assert.Equal(0.1, f.Time())

	// innovation is the measurement itself: the predicted output is zero
	assert.InDelta(1.0, f.Innovation().AtVec(0), 1e-12)
	assert.InDelta(1.0, f.Innovation().AtVec(1), 1e-12)

	s := f.InnovationCov()
	assert.InDelta(3.01, s.At(0, 0), 1e-12)
	assert.InDelta(3.01, s.At(1, 1), 1e-12)
	assert.InDelta(0.0, s.At(0, 1), 1e-12)

	pPred := f.PredCovariance()
	assert.InDelta(2.01, pPred.At(0, 0), 1e-12)
	assert.InDelta(0.1, pPred.At(0, 2), 1e-12)
	assert.InDelta(2.0, pPred.At(2, 2), 1e-12)

	gain := f.Gain()
	assert.InDelta(posGain, gain.At(0, 0), 1e-12)
	assert.InDelta(velGain, gain.At(2, 0), 1e-12)
	assert.InDelta(0.0, gain.At(0, 1), 1e-12)

	// P = (I - K*H)*P_pred
	p := f.Covariance()
	assert.InDelta(2.01/3.01, p.At(0, 0), 1e-12)
	assert.InDelta(0.1/3.01, p.At(0, 2), 1e-12)
	assert.InDelta(6.01/3.01, p.At(2, 2), 1e-12)
	assert.InDelta(0.0, p.At(0, 1), 1e-12)

	// invalid measurement vector
	est, err = f.Update(mat.NewVecDense(3, nil), 0.2)
	assert.Nil(est)
	assert.Error(err)

	est, err = f.Update(nil, 0.2)
	assert.Nil(est)
	assert.Error(err)
}

func TestUpdateTimestamps(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cvMotion, posSensor)
	assert.NotNil(f)
	assert.NoError(err)

	assert.NoError(f.Initialize(x0, p0, 0.0))

	// zero elapsed time is not corrected internally
	est, err := f.Update(z, 0.0)
	assert.NotNil(est)
	assert.NoError(err)

	// neither is an out of order timestamp: dt goes negative
	est, err = f.Update(z, -0.5)
	assert.NotNil(est)
	assert.NoError(err)
	assert.Equal(-0.5, f.Time())
}

func TestAccessorIdempotence(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cvMotion, posSensor)
	assert.NotNil(f)
	assert.NoError(err)

	assert.NoError(f.Initialize(x0, p0, 0.0))

	_, err = f.Update(z, 0.1)
	assert.NoError(err)

	// repeated reads return identical values
	assert.True(mat.Equal(f.State(), f.State()))
	assert.True(mat.Equal(f.Covariance(), f.Covariance()))
	assert.True(mat.Equal(f.Gain(), f.Gain()))
	assert.True(mat.Equal(f.Innovation(), f.Innovation()))
	assert.True(mat.Equal(f.InnovationCov(), f.InnovationCov()))
	assert.Equal(f.Time(), f.Time())

	// mutating a returned snapshot does not touch the filter
	x := f.State()
	x.(*mat.VecDense).SetVec(0, 1000.0)
	assert.NotEqual(1000.0, f.State().AtVec(0))

	p := f.Covariance()
	p.(*mat.SymDense).SetSym(0, 0, 1000.0)
	assert.NotEqual(1000.0, f.Covariance().At(0, 0))
}

func TestUpdateGenericDims(t *testing.T) {
	assert := assert.New(t)

	// the same recursion must run unchanged at different state and
	// measurement dimensionalities
	x5 := mat.NewVecDense(5, []float64{1, 1, 1, 0, 0.25})
	p5 := mat.NewSymDense(5, nil)
	for i := 0; i < 5; i++ {
		p5.SetSym(i, i, 0.1)
	}

	f4, err := New(cvMotion, posSensor)
	assert.NoError(err)
	f5, err := New(ctMotion, rbSensor)
	assert.NoError(err)

	cases := []struct {
		f     *EKF
		truth *mat.VecDense
		x0    *mat.VecDense
		p0    *mat.SymDense
	}{
		{f4, mat.NewVecDense(4, []float64{0.2, -0.1, 1, 0.5}), x0, p0},
		{f5, mat.NewVecDense(5, []float64{1.2, 0.8, 1, 0, 0.25}), x5, p5},
	}

	for _, tc := range cases {
		f := tc.f
		assert.NoError(f.Initialize(tc.x0, tc.p0, 0.0))

		truth := &mat.VecDense{}
		truth.CloneFromVec(tc.truth)

		for k := 1; k <= 10; k++ {
			tk := float64(k) * 0.1

			// noiseless truth propagation and measurement through
			// the same models the filter linearizes
			next, err := autodiff.Eval(tracker.PropagateFunc(f.motion), truth, 0.1)
			assert.NoError(err)
			truth.CloneFromVec(next)

			zk, err := autodiff.Eval(tracker.ObserveFunc(f.obs), truth, tk)
			assert.NoError(err)

			est, err := f.Update(zk, tk)
			assert.NotNil(est)
			assert.NoError(err)

			// the covariance stays symmetric and sane over the run
			p := f.Covariance()
			for i := 0; i < p.SymmetricDim(); i++ {
				assert.True(p.At(i, i) > 0)
				for j := 0; j < p.SymmetricDim(); j++ {
					assert.False(math.IsNaN(p.At(i, j)))
					assert.Equal(p.At(i, j), p.At(j, i))
				}
			}
		}
		assert.InDelta(1.0, f.Time(), 1e-12)

		// noiseless measurements pull the state towards the truth
		e0 := mat.NewVecDense(truth.Len(), nil)
		e0.SubVec(tc.truth, tc.x0)
		e := mat.NewVecDense(truth.Len(), nil)
		e.SubVec(truth, f.State())
		assert.True(mat.Norm(e, 2) < mat.Norm(e0, 2))
	}
}

func TestUpdateSingularInnovation(t *testing.T) {
	assert := assert.New(t)

	// zero process, observation and initial covariance make the
	// innovation covariance singular
	cv, err := model.NewConstantVelocity(2, nil)
	assert.NoError(err)
	pos, err := model.NewPositionSensor(4, 2, nil)
	assert.NoError(err)

	f, err := New(cv, pos)
	assert.NotNil(f)
	assert.NoError(err)

	assert.NoError(f.Initialize(x0, mat.NewSymDense(4, nil), 0.0))

	est, err := f.Update(z, 0.1)
	assert.Nil(est)
	assert.Error(err)
}

func TestUpdateFailurePreservesEstimate(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cvMotion, posSensor)
	assert.NotNil(f)
	assert.NoError(err)

	assert.NoError(f.Initialize(x0, p0, 0.0))

	est, err := f.Update(z, 0.1)
	assert.NotNil(est)
	assert.NoError(err)

	x := f.State()
	p := f.Covariance()
	pPred := f.PredCovariance()
	s := f.InnovationCov()
	inn := f.Innovation()
	gain := f.Gain()

	// swap in a sensor whose innovation covariance is singular
	pos, err := model.NewPositionSensor(4, 2, nil)
	assert.NoError(err)
	assert.NoError(f.SetModels(cvMotion, &flatSensor{pos}))

	est, err = f.Update(z, 0.2)
	assert.Nil(est)
	assert.Error(err)

	// the failed update leaves the estimate and every accessor untouched
	assert.True(mat.Equal(x, f.State()))
	assert.True(mat.Equal(p, f.Covariance()))
	assert.True(mat.Equal(pPred, f.PredCovariance()))
	assert.True(mat.Equal(s, f.InnovationCov()))
	assert.True(mat.Equal(inn, f.Innovation()))
	assert.True(mat.Equal(gain, f.Gain()))
	assert.Equal(0.1, f.Time())

	// the filter keeps tracking once the sensor is restored
	assert.NoError(f.SetModels(cvMotion, posSensor))
	est, err = f.Update(z, 0.2)
	assert.NotNil(est)
	assert.NoError(err)
	assert.Equal(0.2, f.Time())
}
