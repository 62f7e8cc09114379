package nn

import (
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/gopots/gopots/internal/tensor"
)

// spectralBasis holds the DFT of length n and the inverse real DFT as
// dense matrices so the transforms run as (differentiable) matmuls:
//
//	re = fwdRe · x,  im = fwdIm · x
//	y  = invRe · re + invIm · im
//
// The inverse uses only coefficients 0..n/2 and ignores the imaginary part
// of the DC and (for even n) Nyquist terms.
type spectralBasis[B tensor.Backend] struct {
	n     int
	fwdRe *tensor.Tensor[float32, B] // [n, n]
	fwdIm *tensor.Tensor[float32, B]
	invRe *tensor.Tensor[float32, B]
	invIm *tensor.Tensor[float32, B]
}

func newSpectralBasis[B tensor.Backend](n int, backend B) *spectralBasis[B] {
	fwdRe := make([]float32, n*n)
	fwdIm := make([]float32, n*n)
	cfft := fourier.NewCmplxFFT(n)
	seq := make([]complex128, n)
	for j := 0; j < n; j++ {
		clear(seq)
		seq[j] = 1
		coeff := cfft.Coefficients(nil, seq)
		for k, c := range coeff {
			fwdRe[k*n+j] = float32(real(c))
			fwdIm[k*n+j] = float32(imag(c))
		}
	}

	invRe := make([]float32, n*n)
	invIm := make([]float32, n*n)
	rfft := fourier.NewFFT(n)
	half := n / 2
	coeff := make([]complex128, half+1)
	for k := 0; k <= half; k++ {
		clear(coeff)
		coeff[k] = 1
		for t, v := range rfft.Sequence(nil, coeff) {
			invRe[t*n+k] = float32(v / float64(n))
		}
		if k == 0 || (n%2 == 0 && k == half) {
			continue
		}
		coeff[k] = 1i
		for t, v := range rfft.Sequence(nil, coeff) {
			invIm[t*n+k] = float32(v / float64(n))
		}
	}

	shape := tensor.Shape{n, n}
	return &spectralBasis[B]{
		n:     n,
		fwdRe: tensor.MustFromSlice(fwdRe, shape, backend),
		fwdIm: tensor.MustFromSlice(fwdIm, shape, backend),
		invRe: tensor.MustFromSlice(invRe, shape, backend),
		invIm: tensor.MustFromSlice(invIm, shape, backend),
	}
}

// forward transforms x [..., n, M] along the n axis.
func (s *spectralBasis[B]) forward(x *tensor.Tensor[float32, B]) (re, im *tensor.Tensor[float32, B]) {
	return s.fwdRe.MatMul(x), s.fwdIm.MatMul(x)
}

// inverse maps spectra [..., n, M] back to a real signal of length n.
func (s *spectralBasis[B]) inverse(re, im *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return s.invRe.MatMul(re).Add(s.invIm.MatMul(im))
}
