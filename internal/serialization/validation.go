package serialization

import (
	"fmt"
	"slices"
	"strings"
)

// Limits applied when reading untrusted files.
const (
	MaxHeaderSize    = 64 * 1024 * 1024
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 1024
)

// ValidationLevel controls how much of a header is checked on read.
type ValidationLevel int

const (
	// ValidationStrict checks names, sizes and the full offset layout.
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names and sizes only.
	ValidationNormal
	// ValidationNone trusts the file.
	ValidationNone
)

// ValidateTensorName rejects empty names, overlong names and names with
// path separators, "..", or NUL bytes.
func ValidateTensorName(name string) error {
	invalid := func(details string) error {
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: details}
	}
	switch {
	case name == "":
		return invalid("empty name")
	case len(name) > MaxTensorNameLen:
		return invalid(fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen))
	case strings.Contains(name, ".."):
		return invalid("contains '..'")
	case strings.ContainsAny(name, "/\\"):
		return invalid("contains a path separator")
	case strings.ContainsRune(name, 0):
		return invalid("contains a NUL byte")
	}
	return nil
}

// ValidateTensorOffsets checks that every tensor lies inside a data section
// of dataSize bytes and that no two tensors overlap.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	sorted := slices.Clone(tensors)
	slices.SortFunc(sorted, func(a, b TensorMeta) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{Err: ErrNegativeOffset, Tensor: t.Name,
				Details: fmt.Sprintf("offset=%d size=%d", t.Offset, t.Size)}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{Err: ErrOutOfBounds, Tensor: t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data size %d", t.Offset, t.Size, dataSize)}
		}
		if i+1 < len(sorted) && t.Offset+t.Size > sorted[i+1].Offset {
			next := sorted[i+1]
			return &ValidationError{Err: ErrOffsetOverlap, Tensor: t.Name, Tensor2: next.Name,
				Details: fmt.Sprintf("[%d, %d) and [%d, %d)", t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size)}
		}
	}
	return nil
}

// ValidateHeader validates h against a data section of dataSize bytes.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{Err: ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount)}
	}
	for _, t := range h.Tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		dtype, ok := t.dataType()
		if !ok {
			return &ValidationError{Err: ErrUnsupportedDType, Tensor: t.Name, Details: t.DType}
		}
		elems := 1
		for _, d := range t.Shape {
			if d < 0 {
				return &ValidationError{Err: ErrSizeMismatch, Tensor: t.Name,
					Details: fmt.Sprintf("negative dimension in %v", t.Shape)}
			}
			elems *= d
		}
		if want := int64(elems * dtype.Size()); want != t.Size {
			return &ValidationError{Err: ErrSizeMismatch, Tensor: t.Name,
				Details: fmt.Sprintf("shape %v %s needs %d bytes, header says %d", t.Shape, t.DType, want, t.Size)}
		}
	}
	if level == ValidationStrict {
		return ValidateTensorOffsets(h.Tensors, dataSize)
	}
	return nil
}
