package main

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Activation names a hidden-layer nonlinearity.
type Activation string

const (
	ActivationTanh     Activation = "tanh"
	ActivationReLU     Activation = "relu"
	ActivationSigmoid  Activation = "sigmoid"
	ActivationIdentity Activation = "identity"
)

// Apply runs the activation forward.
func (a Activation) Apply(x *Tensor) *Tensor {
	switch a {
	case ActivationTanh:
		return Tanh(x)
	case ActivationReLU:
		return ReLU(x)
	case ActivationSigmoid:
		return Sigmoid(x)
	case ActivationIdentity:
		return x.Clone()
	default:
		panic(fmt.Sprintf("layers: unknown activation %q", a))
	}
}

// Initializer fills a freshly allocated parameter.
type Initializer func(t *Tensor, src rand.Source)

// NormalInitializer draws from N(0, stddev²).
func NormalInitializer(stddev float64) Initializer {
	return func(t *Tensor, src rand.Source) {
		dist := distuv.Normal{Mu: 0, Sigma: stddev, Src: src}
		for i := range t.data {
			t.data[i] = dist.Rand()
		}
	}
}

// UniformInitializer draws from U(lo, hi).
func UniformInitializer(lo, hi float64) Initializer {
	return func(t *Tensor, src rand.Source) {
		dist := distuv.Uniform{Min: lo, Max: hi, Src: src}
		for i := range t.data {
			t.data[i] = dist.Rand()
		}
	}
}

// ConstantInitializer sets every element to v.
func ConstantInitializer(v float64) Initializer {
	return func(t *Tensor, _ rand.Source) {
		for i := range t.data {
			t.data[i] = v
		}
	}
}

// Dense is a fully connected layer: out = act(x @ kernel + bias).
//
// Forward caches the input, pre-activation and output of the most recent
// call; Backward consumes that cache. A Dense is therefore not safe for
// concurrent use.
type Dense struct {
	Name       string
	Kernel     *Tensor // [in, out]
	Bias       *Tensor // [out]
	Activation Activation

	input  *Tensor
	preact *Tensor
	output *Tensor
}

// NewDense allocates and initialises a layer.
func NewDense(name string, in, out int, act Activation, kernelInit, biasInit Initializer, src rand.Source) *Dense {
	d := &Dense{
		Name:       name,
		Kernel:     NewTensor(in, out),
		Bias:       NewTensor(out),
		Activation: act,
	}
	kernelInit(d.Kernel, src)
	biasInit(d.Bias, src)
	return d
}

// Forward computes the layer output for a [batch, in] input.
func (d *Dense) Forward(x *Tensor) *Tensor {
	d.input = x
	d.preact = AddRowVector(MatMul(x, d.Kernel), d.Bias)
	d.output = d.Activation.Apply(d.preact)
	return d.output
}

// Backward accumulates kernel and bias gradients for the cached forward
// pass and returns ∂L/∂input.
func (d *Dense) Backward(gradOut *Tensor) *Tensor {
	if d.input == nil {
		panic(fmt.Sprintf("layers: %s: Backward called before Forward", d.Name))
	}

	gradPre := ActivationBackward(d.Activation, d.preact, d.output, gradOut)
	gradXW, gradBias := AddRowVectorBackward(gradPre)
	gradX, gradKernel := MatMulBackward(d.input, d.Kernel, gradXW)

	d.Kernel.AccumulateGrad(gradKernel)
	d.Bias.AccumulateGrad(gradBias)

	return gradX
}

// Parameters returns the trainable tensors of the layer.
func (d *Dense) Parameters() []*Tensor {
	return []*Tensor{d.Kernel, d.Bias}
}
