package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/born-ml/born/tensor"
)

const bornVersion = "0.7.0"

// StateDicter exposes a model's named tensors.
type StateDicter interface {
	StateDict() map[string]*tensor.RawTensor
}

// Meta is the caller-supplied part of a header.
type Meta struct {
	Metadata map[string]string
	Training *TrainingMeta
}

// Save writes model's state dict to path. The file is written next to
// path and renamed into place, so readers never see a partial checkpoint.
func Save(path string, model StateDicter, meta Meta) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Encode(tmp, model.StateDict(), meta); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// Encode writes stateDict in .born v2 format.
func Encode(w io.Writer, stateDict map[string]*tensor.RawTensor, meta Meta) error {
	header := Header{
		FormatVersion: FormatVersionV2,
		BornVersion:   bornVersion,
		ModelType:     ModelType,
		CreatedAt:     time.Now().UTC(),
		Tensors:       make([]TensorMeta, 0, len(stateDict)),
		Metadata:      meta.Metadata,
		Training:      meta.Training,
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var data bytes.Buffer
	for _, name := range names {
		raw := stateDict[name]
		size := int64(raw.NumElements() * raw.DType().Size())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  dtypeToString(raw.DType()),
			Shape:  []int(raw.Shape()),
			Offset: int64(data.Len()),
			Size:   size,
		})
		data.Write(raw.Data()[:size])
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	fixed := make([]byte, FixedHeaderSizeV2)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersionV2))
	binary.LittleEndian.PutUint32(fixed[8:12], flagsOf(&header))
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(data.Len()))
	checksum := ComputeChecksum(data.Bytes())
	copy(fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize], checksum[:])

	padding := alignedDataOffset(int64(len(headerJSON))) - FixedHeaderSizeV2 - int64(len(headerJSON))
	for _, chunk := range [][]byte{fixed, headerJSON, make([]byte, padding), data.Bytes()} {
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("failed to write checkpoint: %w", err)
		}
	}
	return nil
}

func flagsOf(h *Header) uint32 {
	var flags uint32
	if len(h.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if h.Training != nil {
		flags |= FlagHasTraining
	}
	return flags
}
