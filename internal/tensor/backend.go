package tensor

// Backend computes tensor operations on RawTensors.
//
// Implementations allocate a fresh output for every call and never modify
// their inputs. Invalid arguments (shape mismatches, unsupported dtypes)
// are programming errors and cause a panic of the form "<op>: <cause>".
//
// Comparison and mask operations return tensors of the input dtype holding
// 0 or 1.
type Backend interface {
	// Element-wise binary operations with NumPy broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MatMul multiplies the last two dims; leading dims broadcast.
	MatMul(a, b *RawTensor) *RawTensor

	Reshape(t *RawTensor, newShape Shape) *RawTensor
	// Transpose permutes dims; with no axes the last two dims are swapped.
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Expand(t *RawTensor, shape Shape) *RawTensor

	AddScalar(x *RawTensor, scalar float64) *RawTensor
	MulScalar(x *RawTensor, scalar float64) *RawTensor

	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Sqrt(x *RawTensor) *RawTensor
	Abs(x *RawTensor) *RawTensor
	Neg(x *RawTensor) *RawTensor

	ReLU(x *RawTensor) *RawTensor
	LeakyReLU(x *RawTensor, slope float64) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	Softmax(x *RawTensor, dim int) *RawTensor

	Greater(a, b *RawTensor) *RawTensor    // a > b
	LowerEqual(a, b *RawTensor) *RawTensor // a <= b
	IsNaN(x *RawTensor) *RawTensor
	// Where selects x where condition is non-zero, otherwise y.
	Where(condition, x, y *RawTensor) *RawTensor

	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	Cat(tensors []*RawTensor, dim int) *RawTensor
	Chunk(x *RawTensor, n, dim int) []*RawTensor

	Cast(x *RawTensor, dtype DataType) *RawTensor

	// CrossEntropy returns the mean negative log-likelihood of Int32 class
	// targets [N] under logits [N, C] as a scalar.
	CrossEntropy(logits, targets *RawTensor) *RawTensor

	Name() string
	Device() Device
}
