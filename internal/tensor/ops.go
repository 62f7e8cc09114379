package tensor

// Add performs element-wise addition with broadcasting.
//
//	a := tensor.Ones[float32](Shape{3, 1}, backend)
//	b := tensor.Ones[float32](Shape{3, 5}, backend)
//	c := a.Add(b) // [3, 5]
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[T, B]) Div(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Div(t.raw, other.raw), t.backend)
}

// MatMul multiplies the last two dimensions; leading dimensions broadcast.
//
//	[M, K] @ [K, N] → [M, N]
//	[B, H, M, K] @ [B, H, K, N] → [B, H, M, N]
//	[4, 1, N, N] @ [B, 1, 1, N, T] → [B, 4, 1, N, T]
func (t *Tensor[T, B]) MatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.MatMul(t.raw, other.raw), t.backend)
}

// Reshape returns a tensor with the same data and a new shape.
// One dimension may be -1 and is inferred.
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Reshape(t.raw, inferShape(t.NumElements(), newShape)), t.backend)
}

// Transpose permutes dimensions. Without axes it swaps the last two.
func (t *Tensor[T, B]) Transpose(axes ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Transpose(t.raw, axes...), t.backend)
}

// Permute is Transpose with an explicit full permutation.
func (t *Tensor[T, B]) Permute(axes ...int) *Tensor[T, B] {
	if len(axes) != t.Rank() {
		panic("permute: axes must name every dimension")
	}
	return t.Transpose(axes...)
}

// SwapDims exchanges two dimensions.
func (t *Tensor[T, B]) SwapDims(d0, d1 int) *Tensor[T, B] {
	rank := t.Rank()
	d0, d1 = NormalizeDim(d0, rank), NormalizeDim(d1, rank)
	axes := make([]int, rank)
	for i := range axes {
		axes[i] = i
	}
	axes[d0], axes[d1] = axes[d1], axes[d0]
	return t.Transpose(axes...)
}

// T transposes a 2-D tensor.
func (t *Tensor[T, B]) T() *Tensor[T, B] {
	if t.Rank() != 2 {
		panic("T() requires a 2D tensor")
	}
	return t.Transpose()
}

// Expand broadcasts the tensor to shape.
func (t *Tensor[T, B]) Expand(shape Shape) *Tensor[T, B] {
	return New[T, B](t.backend.Expand(t.raw, shape), t.backend)
}

// AddScalar adds a constant to every element.
func (t *Tensor[T, B]) AddScalar(s float64) *Tensor[T, B] {
	return New[T, B](t.backend.AddScalar(t.raw, s), t.backend)
}

// SubScalar subtracts a constant from every element.
func (t *Tensor[T, B]) SubScalar(s float64) *Tensor[T, B] {
	return t.AddScalar(-s)
}

// MulScalar multiplies every element by a constant.
func (t *Tensor[T, B]) MulScalar(s float64) *Tensor[T, B] {
	return New[T, B](t.backend.MulScalar(t.raw, s), t.backend)
}

// DivScalar divides every element by a constant.
func (t *Tensor[T, B]) DivScalar(s float64) *Tensor[T, B] {
	return t.MulScalar(1 / s)
}

// RSubScalar computes s - t.
func (t *Tensor[T, B]) RSubScalar(s float64) *Tensor[T, B] {
	return t.Neg().AddScalar(s)
}

// Exp computes e^x element-wise.
func (t *Tensor[T, B]) Exp() *Tensor[T, B] {
	return New[T, B](t.backend.Exp(t.raw), t.backend)
}

// Log computes the natural logarithm element-wise.
func (t *Tensor[T, B]) Log() *Tensor[T, B] {
	return New[T, B](t.backend.Log(t.raw), t.backend)
}

// Sqrt computes the square root element-wise.
func (t *Tensor[T, B]) Sqrt() *Tensor[T, B] {
	return New[T, B](t.backend.Sqrt(t.raw), t.backend)
}

// Abs computes |x| element-wise.
func (t *Tensor[T, B]) Abs() *Tensor[T, B] {
	return New[T, B](t.backend.Abs(t.raw), t.backend)
}

// Neg computes -x element-wise.
func (t *Tensor[T, B]) Neg() *Tensor[T, B] {
	return New[T, B](t.backend.Neg(t.raw), t.backend)
}

// Square computes x*x element-wise.
func (t *Tensor[T, B]) Square() *Tensor[T, B] {
	return t.Mul(t)
}

// ReLU computes max(0, x).
func (t *Tensor[T, B]) ReLU() *Tensor[T, B] {
	return New[T, B](t.backend.ReLU(t.raw), t.backend)
}

// LeakyReLU computes x for x > 0 and slope*x otherwise.
func (t *Tensor[T, B]) LeakyReLU(slope float64) *Tensor[T, B] {
	return New[T, B](t.backend.LeakyReLU(t.raw, slope), t.backend)
}

// Sigmoid computes 1 / (1 + e^-x).
func (t *Tensor[T, B]) Sigmoid() *Tensor[T, B] {
	return New[T, B](t.backend.Sigmoid(t.raw), t.backend)
}

// Tanh computes the hyperbolic tangent.
func (t *Tensor[T, B]) Tanh() *Tensor[T, B] {
	return New[T, B](t.backend.Tanh(t.raw), t.backend)
}

// Softmax normalizes along dim (negative values count from the end).
func (t *Tensor[T, B]) Softmax(dim int) *Tensor[T, B] {
	return New[T, B](t.backend.Softmax(t.raw, dim), t.backend)
}

// Greater returns 1 where t > other and 0 elsewhere.
func (t *Tensor[T, B]) Greater(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Greater(t.raw, other.raw), t.backend)
}

// LowerEqual returns 1 where t <= other and 0 elsewhere.
func (t *Tensor[T, B]) LowerEqual(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.LowerEqual(t.raw, other.raw), t.backend)
}

// IsNaN returns 1 at NaN positions and 0 elsewhere.
func (t *Tensor[T, B]) IsNaN() *Tensor[T, B] {
	return New[T, B](t.backend.IsNaN(t.raw), t.backend)
}

// HasNaN reports whether any element is NaN.
func (t *Tensor[T, B]) HasNaN() bool {
	for _, v := range t.raw.Float64s() {
		if v != v {
			return true
		}
	}
	return false
}

// Sum reduces all elements to a scalar.
func (t *Tensor[T, B]) Sum() *Tensor[T, B] {
	return New[T, B](t.backend.Sum(t.raw), t.backend)
}

// Mean averages all elements into a scalar.
func (t *Tensor[T, B]) Mean() *Tensor[T, B] {
	return t.Sum().DivScalar(float64(t.NumElements()))
}

// SumDim sums along dim.
func (t *Tensor[T, B]) SumDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.SumDim(t.raw, dim, keepDim), t.backend)
}

// MeanDim averages along dim.
func (t *Tensor[T, B]) MeanDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T, B](t.backend.MeanDim(t.raw, dim, keepDim), t.backend)
}

// CrossEntropy computes mean cross-entropy of logits [N, C] against class ids [N].
func CrossEntropy[T DType, B Backend](logits *Tensor[T, B], targets *Tensor[int32, B]) *Tensor[T, B] {
	return New[T, B](logits.backend.CrossEntropy(logits.raw, targets.raw), logits.backend)
}

// Cast converts a tensor to element type U.
func Cast[U, T DType, B Backend](t *Tensor[T, B]) *Tensor[U, B] {
	return New[U, B](t.backend.Cast(t.raw, inferDataType[U]()), t.backend)
}

func inferShape(numElements int, dims []int) Shape {
	shape := make(Shape, len(dims))
	infer := -1
	known := 1
	for i, d := range dims {
		if d == -1 {
			if infer >= 0 {
				panic("reshape: only one dimension can be -1")
			}
			infer = i
			continue
		}
		shape[i] = d
		known *= d
	}
	if infer >= 0 {
		if known == 0 || numElements%known != 0 {
			panic("reshape: cannot infer dimension")
		}
		shape[infer] = numElements / known
	}
	return shape
}
