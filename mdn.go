package main

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// This file builds the mixture density network: a small fully connected
// trunk followed by three heads that parameterise a Gaussian mixture.
//
// INTENTION:
// A regression net trained with squared error predicts E[y|x]. When the
// mapping x → y is multi-valued (inverse kinematics, the inverted sinusoid)
// that mean falls between the branches and is useless. An MDN instead
// predicts p(y|x) as a mixture of K Gaussians:
//
//   p(y|x) = Σ_j π_j(x) N(y; μ_j(x), σ²_j(x))
//
// ARCHITECTURE:
//
//   x [n × x_dim]
//     → hid_0 (tanh) → hid_1 (tanh) → ...            shared trunk
//     → pi     : logits → softmax over K             mixture weights
//     → mu     : [n × y_dim × K]                     component means
//     → logvar : [n × y_dim × K] → σ² transform      component variances
//
// TWO VARIANTS:
//   - shared:      π is [n × K]; component j is a diagonal Gaussian over all
//                  of y, so the output dimensions are coupled through j.
//   - independent: π is [n × y_dim × K]; each dimension is its own
//                  univariate mixture.
//
// VARIANCE TRANSFORM:
//   - sig_max == 0: σ² = exp(logvar)                      unbounded
//   - sig_max  > 0: σ² = sig_max · sig_rate · sigmoid(lv)  bounded, and the
//                   training loop ramps sig_rate from ~0 to ~1 so the early
//                   iterations cannot explain the data away with huge σ².
//
// ===========================================================================

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// varianceFloor keeps σ² strictly positive when the transform underflows.
const varianceFloor = 1e-10

// MDN is a mixture density network.
//
// MDN is not safe for concurrent use: layers cache activations between
// Forward and Backward.
type MDN struct {
	config ModelConfig

	hidden []*Dense
	pi     *Dense
	mu     *Dense
	logvar *Dense
}

// NewMDN builds and initialises a network.
//
// Kernels start from N(0, 0.01²) and biases from zero, except the μ bias,
// which is spread uniformly over [-1, 1] so the components start apart.
func NewMDN(cfg ModelConfig, src rand.Source) (*MDN, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &MDN{config: cfg}

	kernelInit := NormalInitializer(0.01)
	zero := ConstantInitializer(0)

	in := cfg.XDim
	for i, width := range cfg.Hidden {
		name := fmt.Sprintf("%s/hid_%d", cfg.Name, i)
		m.hidden = append(m.hidden, NewDense(name, in, width, cfg.Activation, kernelInit, zero, src))
		in = width
	}

	outs := cfg.YDim * cfg.K
	piOuts := cfg.K
	if cfg.Variant == VariantIndependent {
		piOuts = outs
	}

	m.pi = NewDense(cfg.Name+"/pi", in, piOuts, ActivationIdentity, kernelInit, zero, src)
	m.mu = NewDense(cfg.Name+"/mu", in, outs, ActivationIdentity, kernelInit, UniformInitializer(-1, 1), src)
	m.logvar = NewDense(cfg.Name+"/logvar", in, outs, ActivationIdentity, kernelInit, zero, src)

	return m, nil
}

// Config returns the architecture the network was built with.
func (m *MDN) Config() ModelConfig {
	return m.config
}

// layers returns every dense layer in forward order.
func (m *MDN) layers() []*Dense {
	all := make([]*Dense, 0, len(m.hidden)+3)
	all = append(all, m.hidden...)
	return append(all, m.pi, m.mu, m.logvar)
}

// Parameters returns every trainable tensor.
func (m *MDN) Parameters() []*Tensor {
	var params []*Tensor
	for _, l := range m.layers() {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Forward computes the mixture for a batch of inputs x [n × x_dim].
//
// sigRate only matters when SigMax > 0; pass 1 outside of training.
func (m *MDN) Forward(x *Tensor, sigRate float64) *Mixture {
	if x.Dims() != 2 || x.shape[1] != m.config.XDim {
		panic(fmt.Sprintf("mdn: input shape %v, want [n %d]", x.shape, m.config.XDim))
	}

	n, d, k := x.shape[0], m.config.YDim, m.config.K

	h := x
	for _, l := range m.hidden {
		h = l.Forward(h)
	}

	logits := m.pi.Forward(h)
	if m.config.Variant == VariantIndependent {
		logits = logits.Reshape(n, d, k)
	}

	logvar := m.logvar.Forward(h).Reshape(n, d, k)

	return &Mixture{
		Variant: m.config.Variant,
		N:       n,
		D:       d,
		K:       k,
		Pi:      Softmax(logits),
		Mu:      m.mu.Forward(h).Reshape(n, d, k),
		Var:     m.variance(logvar, sigRate),
		logvar:  logvar,
		sigRate: sigRate,
		sigMax:  m.config.SigMax,
	}
}

// variance applies the σ² transform selected by SigMax.
func (m *MDN) variance(logvar *Tensor, sigRate float64) *Tensor {
	out := NewTensor(logvar.shape...)
	scale := m.config.SigMax * sigRate
	for i, lv := range logvar.data {
		var v float64
		if m.config.SigMax == 0 {
			v = math.Exp(lv)
		} else {
			v = scale * sigmoid(lv)
		}
		out.data[i] = math.Max(v, varianceFloor)
	}
	return out
}

// L2Penalty returns l2_reg_coef · Σ ||w||² / 2 over every variable.
func (m *MDN) L2Penalty() float64 {
	sum := 0.0
	for _, p := range m.Parameters() {
		for _, v := range p.data {
			sum += v * v
		}
	}
	return m.config.L2RegCoef * sum / 2
}

// Cost runs a forward pass and returns -mean log-likelihood + L2 penalty.
func (m *MDN) Cost(x, y *Tensor, sigRate float64) (float64, *Mixture) {
	mix := m.Forward(x, sigRate)
	return m.L2Penalty() - mix.LogLikelihood(y), mix
}

// Backward accumulates ∂Cost/∂θ into every parameter's gradient buffer.
// mix must be the result of the most recent Forward call.
func (m *MDN) Backward(mix *Mixture, y *Tensor) {
	grads := mix.gradients(y)

	gh := m.pi.Backward(grads.logits)
	gh = Add(gh, m.mu.Backward(grads.mu))
	gh = Add(gh, m.logvar.Backward(grads.logvar))

	for i := len(m.hidden) - 1; i >= 0; i-- {
		gh = m.hidden[i].Backward(gh)
	}

	if coef := m.config.L2RegCoef; coef > 0 {
		for _, p := range m.Parameters() {
			for i, v := range p.data {
				p.grad[i] += coef * v
			}
		}
	}
}

// ZeroGrad clears every parameter gradient.
func (m *MDN) ZeroGrad() {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}

// Predict evaluates the mixture with the variance schedule fully ramped.
func (m *MDN) Predict(x *Tensor) *Mixture {
	return m.Forward(x, 1)
}
