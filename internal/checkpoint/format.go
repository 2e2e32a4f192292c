package checkpoint

import (
	"time"

	"github.com/born-ml/born/tensor"
)

// Format constants.
const (
	MagicBytes        = "BORN"
	FormatVersionV2   = 2
	HeaderAlignment   = 64
	FixedHeaderSizeV2 = 64
	ChecksumSize      = 32
	ChecksumOffsetV2  = 0x20

	// ModelType is written to every header.
	ModelType = "DeepVO"
)

// Data type names used in the tensor table.
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
	DTypeInt32   = "int32"
	DTypeInt64   = "int64"
	DTypeUint8   = "uint8"
	DTypeBool    = "bool"
)

// Flags.
const (
	FlagHasTraining uint32 = 1 << 1 // training state included
	FlagHasMetadata uint32 = 1 << 2 // custom metadata included
)

// Header is the JSON header of a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	BornVersion   string            `json:"born_version"`
	ModelType     string            `json:"model_type"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata"`
	Training      *TrainingMeta     `json:"checkpoint,omitempty"`
}

// TrainingMeta records where in training a checkpoint was taken.
type TrainingMeta struct {
	IsCheckpoint    bool           `json:"is_checkpoint"`
	Epoch           int            `json:"epoch"`
	Step            int64          `json:"step"`
	Loss            float64        `json:"loss"`
	ValidLoss       float64        `json:"valid_loss,omitempty"`
	OptimizerType   string         `json:"optimizer_type,omitempty"`
	OptimizerConfig map[string]any `json:"optimizer_config,omitempty"`
}

// TensorMeta describes one tensor of the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`
}

func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Float64:
		return DTypeFloat64
	case tensor.Int32:
		return DTypeInt32
	case tensor.Int64:
		return DTypeInt64
	case tensor.Uint8:
		return DTypeUint8
	case tensor.Bool:
		return DTypeBool
	default:
		return "unknown"
	}
}

func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	case DTypeInt32:
		return tensor.Int32, true
	case DTypeInt64:
		return tensor.Int64, true
	case DTypeUint8:
		return tensor.Uint8, true
	case DTypeBool:
		return tensor.Bool, true
	default:
		return 0, false
	}
}

// alignedDataOffset is where the data section starts for a JSON header of
// headerSize bytes.
func alignedDataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSizeV2) + headerSize
	return pos + (HeaderAlignment-pos%HeaderAlignment)%HeaderAlignment
}
