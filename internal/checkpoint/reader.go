package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/born/tensor"
)

// StateLoader accepts a state dict, as Model.LoadStateDict does.
type StateLoader interface {
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Load reads path and copies its tensors into model. The model must have
// exactly the tensors of the file, with the same shapes.
func Load(path string, model StateLoader) (Header, error) {
	stateDict, header, err := ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	if err := model.LoadStateDict(stateDict); err != nil {
		return Header{}, fmt.Errorf("load %s: %w", path, err)
	}
	return header, nil
}

// ReadFile decodes the checkpoint at path.
func ReadFile(path string) (map[string]*tensor.RawTensor, Header, error) {
	//nolint:gosec // G304: checkpoint paths come from the command line
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	stateDict, header, err := Decode(f)
	if err != nil {
		return nil, Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return stateDict, header, nil
}

// ReadHeader decodes and validates only the header of path. The checksum
// is not verified.
func ReadHeader(path string) (Header, error) {
	//nolint:gosec // G304: checkpoint paths come from the command line
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	header, _, _, err := decodeHeader(f)
	return header, err
}

// Decode reads a .born v2 stream: header, checksum-verified data section
// and the tensors it describes.
func Decode(r io.Reader) (map[string]*tensor.RawTensor, Header, error) {
	header, dataSize, checksum, err := decodeHeader(r)
	if err != nil {
		return nil, Header{}, err
	}

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, Header{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if err := ValidateChecksum(ComputeChecksum(data), checksum); err != nil {
		return nil, Header{}, err
	}

	stateDict := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		dtype, _ := stringToDtype(meta.DType)
		raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dtype, tensor.CPU)
		if err != nil {
			return nil, Header{}, fmt.Errorf("failed to create tensor %s: %w", meta.Name, err)
		}
		copy(raw.Data(), data[meta.Offset:meta.Offset+meta.Size])
		stateDict[meta.Name] = raw
	}
	return stateDict, header, nil
}

// decodeHeader reads the fixed header, the JSON header and the padding,
// leaving r at the start of the data section.
func decodeHeader(r io.Reader) (Header, int64, [32]byte, error) {
	var checksum [32]byte

	fixed := make([]byte, FixedHeaderSizeV2)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return Header{}, 0, checksum, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return Header{}, 0, checksum, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(fixed[4:8]); version != FormatVersionV2 {
		return Header{}, 0, checksum, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersionV2)
	}
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	copy(checksum[:], fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return Header{}, 0, checksum, ErrHeaderTooLarge
	}
	if dataSize > 1<<40 {
		return Header{}, 0, checksum, &ValidationError{Type: "data_too_large", Details: fmt.Sprintf("%d bytes", dataSize)}
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return Header{}, 0, checksum, fmt.Errorf("failed to read header JSON: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return Header{}, 0, checksum, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if header.ModelType != ModelType {
		return Header{}, 0, checksum, fmt.Errorf("%w: %q", ErrModelType, header.ModelType)
	}
	//nolint:gosec // G115: both sizes are bounded above
	if err := ValidateHeader(&header, int64(dataSize)); err != nil {
		return Header{}, 0, checksum, fmt.Errorf("validation failed: %w", err)
	}

	//nolint:gosec // G115: headerSize <= MaxHeaderSize
	padding := alignedDataOffset(int64(headerSize)) - FixedHeaderSizeV2 - int64(headerSize)
	if _, err := io.CopyN(io.Discard, r, padding); err != nil {
		return Header{}, 0, checksum, fmt.Errorf("failed to read padding: %w", err)
	}
	//nolint:gosec // G115: dataSize is bounded above
	return header, int64(dataSize), checksum, nil
}
