package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopots/gopots/internal/tensor"
)

func testStateDict() map[string]*tensor.RawTensor {
	w := tensor.MustRaw(tensor.Shape{2, 3}, tensor.Float32)
	copy(w.AsFloat32(), []float32{1, 2, 3, 4, 5, 6})
	b := tensor.MustRaw(tensor.Shape{3}, tensor.Float64)
	copy(b.AsFloat64(), []float64{0.5, -0.5, 1e-9})
	step := tensor.MustRaw(tensor.Shape{}, tensor.Int32)
	step.AsInt32()[0] = 42
	return map[string]*tensor.RawTensor{
		"encoder.w_qs.weight": w,
		"encoder.w_qs.bias":   b,
		"adam.step":           step,
	}
}

func encode(t *testing.T, sd map[string]*tensor.RawTensor, h Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sd, h))
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	sd := testStateDict()
	data := encode(t, sd, Header{ModelType: "SAITS", Metadata: map[string]string{"n_steps": "24"}})

	got, header, err := Decode(bytes.NewReader(data), ReaderOptions{})
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, header.FormatVersion)
	assert.Equal(t, Version, header.Version)
	assert.Equal(t, "SAITS", header.ModelType)
	assert.Equal(t, "24", header.Metadata["n_steps"])
	assert.Nil(t, header.Checkpoint)

	require.Len(t, got, len(sd))
	for name, want := range sd {
		g, ok := got[name]
		require.True(t, ok, name)
		assert.Equal(t, want.Shape(), g.Shape(), name)
		assert.Equal(t, want.DType(), g.DType(), name)
		assert.Equal(t, want.Data(), g.Data(), name)
	}
}

func TestLayout(t *testing.T) {
	data := encode(t, testStateDict(), Header{Metadata: map[string]string{"k": "v"}})

	assert.Equal(t, MagicBytes, string(data[:4]))
	assert.Equal(t, uint32(FormatVersion), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, FlagHasMetadata, binary.LittleEndian.Uint32(data[8:12]))

	headerSize := int64(binary.LittleEndian.Uint64(data[16:24]))
	dataSize := int64(binary.LittleEndian.Uint64(data[24:32]))
	start := alignedHeaderEnd(headerSize)
	assert.Zero(t, start%HeaderAlignment)
	assert.Equal(t, int64(len(data)), start+dataSize)
	// 6 float32 + 3 float64 + 1 int32
	assert.Equal(t, int64(6*4+3*8+4), dataSize)
}

func TestDeterministicOrder(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := encode(t, testStateDict(), Header{CreatedAt: created})
	b := encode(t, testStateDict(), Header{CreatedAt: created})
	assert.Equal(t, a, b)

	_, header, err := Decode(bytes.NewReader(a), ReaderOptions{})
	require.NoError(t, err)
	names := make([]string, len(header.Tensors))
	for i, m := range header.Tensors {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"adam.step", "encoder.w_qs.bias", "encoder.w_qs.weight"}, names)
}

func TestCorruptionDetected(t *testing.T) {
	data := encode(t, testStateDict(), Header{})
	data[len(data)-1] ^= 0xFF

	_, _, err := Decode(bytes.NewReader(data), ReaderOptions{})
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, _, err = Decode(bytes.NewReader(data), ReaderOptions{SkipChecksumValidation: true})
	assert.NoError(t, err)
}

func TestDecodeRejects(t *testing.T) {
	good := encode(t, testStateDict(), Header{})

	t.Run("magic", func(t *testing.T) {
		data := bytes.Clone(good)
		copy(data, "XPOT")
		_, _, err := Decode(bytes.NewReader(data), ReaderOptions{})
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("version", func(t *testing.T) {
		data := bytes.Clone(good)
		binary.LittleEndian.PutUint32(data[4:8], 1)
		_, _, err := Decode(bytes.NewReader(data), ReaderOptions{})
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("header size", func(t *testing.T) {
		data := bytes.Clone(good)
		binary.LittleEndian.PutUint64(data[16:24], MaxHeaderSize+1)
		_, _, err := Decode(bytes.NewReader(data), ReaderOptions{})
		assert.ErrorIs(t, err, ErrHeaderTooLarge)
	})

	t.Run("truncated", func(t *testing.T) {
		_, _, err := Decode(bytes.NewReader(good[:len(good)-3]), ReaderOptions{})
		assert.Error(t, err)
	})
}

func TestEncodeRejectsBadNames(t *testing.T) {
	sd := map[string]*tensor.RawTensor{"../etc/passwd": tensor.MustRaw(tensor.Shape{1}, tensor.Float32)}
	err := Encode(&bytes.Buffer{}, sd, Header{})
	assert.ErrorIs(t, err, ErrInvalidTensorName)
}

func TestCheckpointFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.pots")
	header := Header{
		ModelType: "StemGNN",
		Checkpoint: &CheckpointMeta{
			Epoch:           7,
			Step:            140,
			Loss:            0.125,
			OptimizerType:   "AdamW",
			OptimizerConfig: map[string]float64{"lr": 0.001, "weight_decay": 1e-5},
			RunID:           "run-1",
		},
	}
	require.NoError(t, WriteFile(path, testStateDict(), header))

	sd, got, err := ReadFile(path, ReaderOptions{})
	require.NoError(t, err)
	assert.Len(t, sd, 3)
	require.NotNil(t, got.Checkpoint)
	assert.Equal(t, *header.Checkpoint, *got.Checkpoint)

	_, _, err = ReadFile(filepath.Join(t.TempDir(), "missing.pots"), ReaderOptions{})
	assert.Error(t, err)
}

func TestValidateTensorName(t *testing.T) {
	for _, name := range []string{"fc.weight", "stock_block.0.GLUs.3.linear_left.bias", "optimizer.m.0"} {
		assert.NoError(t, ValidateTensorName(name), name)
	}
	for _, name := range []string{"", "a/b", `a\b`, "a..b", "a\x00b", string(make([]byte, MaxTensorNameLen+1))} {
		err := ValidateTensorName(name)
		assert.ErrorIs(t, err, ErrInvalidTensorName, "%q", name)
	}
}

func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name    string
		tensors []TensorMeta
		size    int64
		want    error
	}{
		{"adjacent", []TensorMeta{{Name: "a", Offset: 0, Size: 8}, {Name: "b", Offset: 8, Size: 8}}, 16, nil},
		{"overlap", []TensorMeta{{Name: "a", Offset: 0, Size: 12}, {Name: "b", Offset: 8, Size: 8}}, 20, ErrOffsetOverlap},
		{"out of bounds", []TensorMeta{{Name: "a", Offset: 8, Size: 16}}, 16, ErrOutOfBounds},
		{"negative", []TensorMeta{{Name: "a", Offset: -4, Size: 4}}, 16, ErrNegativeOffset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, tt.size)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestValidateHeaderLevels(t *testing.T) {
	h := &Header{Tensors: []TensorMeta{
		{Name: "a", DType: "float32", Shape: []int{2}, Offset: 0, Size: 8},
		{Name: "b", DType: "float32", Shape: []int{2}, Offset: 4, Size: 8},
	}}
	assert.ErrorIs(t, ValidateHeader(h, 16, ValidationStrict), ErrOffsetOverlap)
	assert.NoError(t, ValidateHeader(h, 16, ValidationNormal))
	assert.NoError(t, ValidateHeader(h, 16, ValidationNone))

	bad := &Header{Tensors: []TensorMeta{{Name: "a", DType: "float32", Shape: []int{3}, Size: 8}}}
	assert.ErrorIs(t, ValidateHeader(bad, 16, ValidationNormal), ErrSizeMismatch)

	unknown := &Header{Tensors: []TensorMeta{{Name: "a", DType: "bfloat16", Shape: []int{1}, Size: 2}}}
	assert.ErrorIs(t, ValidateHeader(unknown, 16, ValidationNormal), ErrUnsupportedDType)
}

func TestChecksum(t *testing.T) {
	sum := ComputeChecksum([]byte("abc"))
	// SHA-256("abc") starts with ba7816bf.
	assert.Equal(t, []byte{0xba, 0x78, 0x16, 0xbf}, sum[:4])
	assert.NoError(t, ValidateChecksum(sum, sum))
	other := ComputeChecksum([]byte("abd"))
	assert.ErrorIs(t, ValidateChecksum(sum, other), ErrChecksumMismatch)
}
