package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/floats"
)

func testModelConfig(variant Variant) ModelConfig {
	cfg := DefaultModelConfig()
	cfg.XDim = 2
	cfg.YDim = 2
	cfg.K = 3
	cfg.Hidden = []int{5, 4}
	cfg.Variant = variant
	cfg.L2RegCoef = 1e-2
	cfg.Verbose = false
	return cfg
}

// spreadWeights replaces the tiny initial kernels so every path through
// the network carries a non-trivial gradient.
func spreadWeights(m *MDN, seed uint64) {
	initW := NormalInitializer(0.5)
	src := newRand(seed)
	for _, p := range m.Parameters() {
		initW(p, src)
	}
}

func flattenParams(params []*Tensor) []float64 {
	var out []float64
	for _, p := range params {
		out = append(out, p.data...)
	}
	return out
}

func flattenGrads(params []*Tensor) []float64 {
	var out []float64
	for _, p := range params {
		out = append(out, p.grad...)
	}
	return out
}

func loadParams(params []*Tensor, theta []float64) {
	off := 0
	for _, p := range params {
		off += copy(p.data, theta[off:off+len(p.data)])
	}
}

func randomBatch(n, dim int, seed uint64) *Tensor {
	t := NewTensor(n, dim)
	NormalInitializer(1)(t, newRand(seed))
	return t
}

func TestNewMDNShapes(t *testing.T) {
	for _, variant := range []Variant{VariantShared, VariantIndependent} {
		t.Run(string(variant), func(t *testing.T) {
			cfg := testModelConfig(variant)
			m, err := NewMDN(cfg, newRand(1))
			require.NoError(t, err)

			x := randomBatch(7, cfg.XDim, 2)
			mix := m.Forward(x, 1)

			assert.Equal(t, []int{7, 2, 3}, mix.Mu.Shape())
			assert.Equal(t, []int{7, 2, 3}, mix.Var.Shape())
			if variant == VariantShared {
				assert.Equal(t, []int{7, 3}, mix.Pi.Shape())
			} else {
				assert.Equal(t, []int{7, 2, 3}, mix.Pi.Shape())
			}

			for b := 0; b < mix.N; b++ {
				for d := 0; d < mix.D; d++ {
					sum := 0.0
					for j := 0; j < mix.K; j++ {
						w := mix.Weight(b, d, j)
						assert.GreaterOrEqual(t, w, 0.0)
						sum += w
					}
					assert.InDelta(t, 1.0, sum, 1e-12)
				}
			}
			for _, v := range mix.Var.data {
				assert.Greater(t, v, 0.0)
			}
		})
	}
}

func TestNewMDNInitialisation(t *testing.T) {
	m, err := NewMDN(testModelConfig(VariantShared), newRand(3))
	require.NoError(t, err)

	for _, l := range m.layers() {
		assert.Less(t, floats.Norm(l.Kernel.data, 2)/float64(len(l.Kernel.data)), 0.05, l.Name)
	}

	for _, v := range m.mu.Bias.data {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Greater(t, floats.Norm(m.mu.Bias.data, 2), 0.0)

	for _, l := range append(append([]*Dense(nil), m.hidden...), m.pi, m.logvar) {
		assert.Equal(t, make([]float64, len(l.Bias.data)), l.Bias.data, l.Name)
	}
}

func TestNewMDNRejectsInvalidConfig(t *testing.T) {
	cfg := testModelConfig(VariantShared)
	cfg.K = 0
	_, err := NewMDN(cfg, newRand(1))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = testModelConfig("mixed")
	_, err = NewMDN(cfg, newRand(1))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestForwardRejectsWrongInputWidth(t *testing.T) {
	m, err := NewMDN(testModelConfig(VariantShared), newRand(1))
	require.NoError(t, err)
	assert.Panics(t, func() { m.Forward(NewTensor(3, 5), 1) })
}

func TestVarianceTransform(t *testing.T) {
	cfg := testModelConfig(VariantShared)
	cfg.SigMax = 2
	m, err := NewMDN(cfg, newRand(1))
	require.NoError(t, err)

	lv := NewTensorFrom([]float64{-50, 0, 50}, 1, 1, 3)

	bounded := m.variance(lv, 0.5)
	assert.InDelta(t, 0.5, bounded.data[1], 1e-12) // 2 · 0.5 · sigmoid(0)
	assert.InDelta(t, 1.0, bounded.data[2], 1e-12)
	assert.Equal(t, varianceFloor, bounded.data[0])

	m.config.SigMax = 0
	unbounded := m.variance(lv, 0.5)
	assert.InDelta(t, 1.0, unbounded.data[1], 1e-12)
	assert.Equal(t, varianceFloor, unbounded.data[0])
}

func TestL2Penalty(t *testing.T) {
	m, err := NewMDN(testModelConfig(VariantShared), newRand(1))
	require.NoError(t, err)

	theta := flattenParams(m.Parameters())
	assert.InDelta(t, 1e-2*floats.Dot(theta, theta)/2, m.L2Penalty(), 1e-15)
}

// TestCostGradient checks the analytic backward pass of the full cost
// against central finite differences for every variant and variance
// transform.
func TestCostGradient(t *testing.T) {
	cases := []struct {
		name    string
		variant Variant
		sigMax  float64
		sigRate float64
	}{
		{"shared/exp", VariantShared, 0, 1},
		{"independent/exp", VariantIndependent, 0, 1},
		{"shared/sigmoid", VariantShared, 2, 0.7},
		{"independent/sigmoid", VariantIndependent, 3, 0.4},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testModelConfig(tc.variant)
			cfg.SigMax = tc.sigMax
			m, err := NewMDN(cfg, newRand(uint64(10+i)))
			require.NoError(t, err)
			spreadWeights(m, uint64(20+i))

			x := randomBatch(6, cfg.XDim, uint64(30+i))
			y := randomBatch(6, cfg.YDim, uint64(40+i))
			params := m.Parameters()

			m.ZeroGrad()
			_, mix := m.Cost(x, y, tc.sigRate)
			m.Backward(mix, y)
			analytic := flattenGrads(params)

			theta := flattenParams(params)
			numeric := fd.Gradient(nil, func(th []float64) float64 {
				loadParams(params, th)
				cost, _ := m.Cost(x, y, tc.sigRate)
				return cost
			}, append([]float64(nil), theta...), centralDiff)
			loadParams(params, theta)

			require.Len(t, analytic, len(numeric))
			for k := range numeric {
				assert.InDelta(t, numeric[k], analytic[k], 1e-5+1e-4*abs(numeric[k]), "parameter %d", k)
			}
		})
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestBackwardAccumulates(t *testing.T) {
	m, err := NewMDN(testModelConfig(VariantShared), newRand(1))
	require.NoError(t, err)
	x := randomBatch(4, 2, 2)
	y := randomBatch(4, 2, 3)

	m.ZeroGrad()
	_, mix := m.Cost(x, y, 1)
	m.Backward(mix, y)
	once := flattenGrads(m.Parameters())

	_, mix = m.Cost(x, y, 1)
	m.Backward(mix, y)
	twice := flattenGrads(m.Parameters())

	floats.Scale(2, once)
	assert.InDeltaSlice(t, once, twice, 1e-12)
}

func TestSummary(t *testing.T) {
	cfg := testModelConfig(VariantIndependent)
	m, err := NewMDN(cfg, newRand(1))
	require.NoError(t, err)

	s := m.Summary()

	names := make([]string, len(s.Variables))
	for i, v := range s.Variables {
		names[i] = v.Name
	}
	assert.Equal(t, []string{
		"mdn/hid_0/kernel", "mdn/hid_0/bias",
		"mdn/hid_1/kernel", "mdn/hid_1/bias",
		"mdn/pi/kernel", "mdn/pi/bias",
		"mdn/mu/kernel", "mdn/mu/bias",
		"mdn/logvar/kernel", "mdn/logvar/bias",
	}, names)
	assert.Equal(t, []int{4, 6}, s.Variables[4].Shape)

	require.Len(t, s.Layers, 6)
	assert.Equal(t, LayerInfo{Name: "mdn/pi", Shape: []int{batchDim, 2, 3}}, s.Layers[3])
	assert.Equal(t, "mdn/var", s.Layers[5].Name)

	// 2·5+5 + 5·4+4 + 3·(4·6+6)
	assert.Equal(t, 15+24+90, s.NumParameters())
	assert.Equal(t, len(flattenParams(m.Parameters())), s.NumParameters())
}

func TestSummaryLog(t *testing.T) {
	m, err := NewMDN(testModelConfig(VariantShared), newRand(1))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	m.Summary().Log(zap.New(core))

	assert.Equal(t, 10, logs.FilterMessage("variable").Len())
	assert.Equal(t, 6, logs.FilterMessage("layer").Len())
	built := logs.FilterMessage("model built").All()
	require.Len(t, built, 1)
	assert.Equal(t, int64(129), built[0].ContextMap()["parameters"])
}

func TestClampedVarianceHasNoGradient(t *testing.T) {
	for _, sigMax := range []float64{0, 2} {
		cfg := testModelConfig(VariantShared)
		cfg.SigMax = sigMax
		cfg.L2RegCoef = 0
		m, err := NewMDN(cfg, newRand(1))
		require.NoError(t, err)

		// logvar = -50 everywhere: exp and sigmoid both fall below the floor.
		ConstantInitializer(0)(m.logvar.Kernel, nil)
		ConstantInitializer(-50)(m.logvar.Bias, nil)

		x := randomBatch(4, cfg.XDim, 2)
		y := randomBatch(4, cfg.YDim, 3)

		m.ZeroGrad()
		_, mix := m.Cost(x, y, 1)
		for _, v := range mix.Var.data {
			require.Equal(t, varianceFloor, v)
		}
		assert.Equal(t, make([]float64, mix.Var.Size()), mix.gradients(y).logvar.data)

		m.Backward(mix, y)
		assert.Equal(t, make([]float64, m.logvar.Bias.Size()), m.logvar.Bias.grad)
		assert.Equal(t, make([]float64, m.logvar.Kernel.Size()), m.logvar.Kernel.grad)
	}
}
