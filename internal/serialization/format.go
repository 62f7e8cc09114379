package serialization

import (
	"time"

	"github.com/gopots/gopots/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "POTS"
	FormatVersion   = 2
	HeaderAlignment = 64 // Tensor data starts on a 64-byte boundary.
	FixedHeaderSize = 64
	ChecksumSize    = 32
	ChecksumOffset  = 0x20
)

// Flags stored in the fixed header.
const (
	FlagHasMetadata  uint32 = 1 << 0
	FlagHasOptimizer uint32 = 1 << 1 // Optimizer state tensors are included.
	FlagCheckpoint   uint32 = 1 << 2
)

// Header is the JSON header of a .pots file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	Version       string            `json:"gopots_version"`
	ModelType     string            `json:"model_type"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata"`
	Checkpoint    *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta describes the training state stored next to the weights.
type CheckpointMeta struct {
	Epoch           int                `json:"epoch"`
	Step            int64              `json:"step"`
	Loss            float64            `json:"loss"`
	OptimizerType   string             `json:"optimizer_type"`
	OptimizerConfig map[string]float64 `json:"optimizer_config,omitempty"`
	RunID           string             `json:"run_id,omitempty"`
}

// TensorMeta locates one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // From the start of the data section.
	Size   int64  `json:"size"`   // In bytes.
}

func (m TensorMeta) dataType() (tensor.DataType, bool) {
	return tensor.ParseDataType(m.DType)
}

func alignedHeaderEnd(headerSize int64) int64 {
	end := int64(FixedHeaderSize) + headerSize
	return end + (HeaderAlignment-end%HeaderAlignment)%HeaderAlignment
}
