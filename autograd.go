package main

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// This file implements the backward rules (reverse-mode differentiation) for
// every forward operation the mixture density network uses.
//
// INTENTION:
// The network is a stack of dense layers followed by three heads. Each
// forward op (MatMul, bias add, activation) has a matching backward op that,
// given ∂L/∂output, returns ∂L/∂input and the parameter gradients.
//
// THE CHAIN RULE:
//
// Given: h = f(x) and L = g(h)
// Chain rule: ∂L/∂x = ∂L/∂h · ∂h/∂x
//
// The mixture head gradients (∂L/∂logits, ∂L/∂μ, ∂L/∂logvar) are derived in
// mixture.go; from there on everything flows through the rules below.
//
// ===========================================================================

import (
	"fmt"
)

// MatMulBackward computes gradients for matrix multiplication.
//
// Given:
//   - C = A @ B
//   - gradC = ∂L/∂C (gradient flowing back from loss)
//
// Compute:
//   - gradA = ∂L/∂A = gradC @ B^T
//   - gradB = ∂L/∂B = A^T @ gradC
//
// Derivation:
//
//	C[i,j] = Σ_k A[i,k] * B[k,j]
//	∂C[i,j]/∂A[i,k] = B[k,j]
//	∂L/∂A[i,k] = Σ_j ∂L/∂C[i,j] * B[k,j] = (gradC @ B^T)[i,k]
func MatMulBackward(a, b, gradC *Tensor) (gradA, gradB *Tensor) {
	gradA = MatMul(gradC, Transpose(b))
	gradB = MatMul(Transpose(a), gradC)
	return gradA, gradB
}

// AddRowVectorBackward computes gradients for a broadcast bias add.
//
// Given:
//   - Y = X + v (v broadcast over rows)
//   - gradY = ∂L/∂Y
//
// Compute:
//   - gradX = gradY (passes through unchanged)
//   - gradV[j] = Σ_i gradY[i,j] (every row used v)
func AddRowVectorBackward(gradY *Tensor) (gradX, gradV *Tensor) {
	if len(gradY.shape) != 2 {
		panic("AddRowVectorBackward: requires 2D tensor")
	}

	rows, cols := gradY.shape[0], gradY.shape[1]
	gradV = NewTensor(cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			gradV.data[j] += gradY.data[i*cols+j]
		}
	}

	return gradY.Clone(), gradV
}

// TanhBackward computes gradient for tanh given its output.
//
// d/dx tanh(x) = 1 - tanh²(x), so the forward output is all we need.
func TanhBackward(y, gradY *Tensor) *Tensor {
	gradX := NewTensor(y.shape...)
	for i, v := range y.data {
		gradX.data[i] = gradY.data[i] * (1 - v*v)
	}
	return gradX
}

// ReLUBackward computes gradient for ReLU activation.
//
// Derivation:
//
//	Y[i] = max(0, X[i])
//	∂Y[i]/∂X[i] = 1 if X[i] > 0, else 0
func ReLUBackward(x, gradY *Tensor) *Tensor {
	gradX := NewTensor(x.shape...)
	for i := range x.data {
		if x.data[i] > 0 {
			gradX.data[i] = gradY.data[i]
		}
	}
	return gradX
}

// SigmoidBackward computes gradient for the logistic function given its
// output: σ'(x) = σ(x)(1 - σ(x)).
func SigmoidBackward(y, gradY *Tensor) *Tensor {
	gradX := NewTensor(y.shape...)
	for i, v := range y.data {
		gradX.data[i] = gradY.data[i] * v * (1 - v)
	}
	return gradX
}

// ActivationBackward dispatches to the backward rule of act.
// preact is the activation input, out its output.
func ActivationBackward(act Activation, preact, out, gradOut *Tensor) *Tensor {
	switch act {
	case ActivationTanh:
		return TanhBackward(out, gradOut)
	case ActivationReLU:
		return ReLUBackward(preact, gradOut)
	case ActivationSigmoid:
		return SigmoidBackward(out, gradOut)
	case ActivationIdentity:
		return gradOut.Clone()
	default:
		panic(fmt.Sprintf("ActivationBackward: unknown activation %q", act))
	}
}
