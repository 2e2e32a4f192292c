// Package torchimport loads PyTorch DeepVO weights into the Go model.
//
// The input is a file written with torch.save(model.state_dict()). Parameter
// and buffer names of the PyTorch model and the Go model are identical
// (conv1.0.weight, conv1.1.running_mean, rnn.weight_ih_l0, linear.bias,
// ...), so the import is a name-by-name copy with shape checks.
package torchimport

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/born/tensor"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/rs/zerolog/log"
)

// Errors returned by Import.
var (
	ErrMissingParameter    = errors.New("parameter not found in PyTorch state dict")
	ErrUnexpectedParameter = errors.New("unexpected parameter in PyTorch state dict")
	ErrShapeMismatch       = errors.New("shape mismatch")
	ErrUnsupportedStorage  = errors.New("unsupported tensor storage")
)

// dataParallelPrefix is added to every name by torch.nn.DataParallel.
const dataParallelPrefix = "module."

// ignoredSuffixes name PyTorch bookkeeping tensors with no Go counterpart.
var ignoredSuffixes = []string{"num_batches_tracked"}

// Model is the part of deepvo.Model used by the importer.
type Model interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Report summarizes an import.
type Report struct {
	Loaded  int      // tensors copied into the model
	Skipped []string // PyTorch tensors intentionally ignored
}

// Import reads the pickled state dict at path and copies it into model.
func Import(path string, model Model) (Report, error) {
	torchModel, err := pytorch.Load(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load torch model %q: %w", path, err)
	}
	params, err := makeParamsMap(torchModel)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read model params: %w", err)
	}
	report, err := importParams(params, model)
	if err != nil {
		return Report{}, fmt.Errorf("import %s: %w", path, err)
	}
	log.Debug().Str("file", path).Int("loaded", report.Loaded).Strs("skipped", report.Skipped).Msg("imported PyTorch weights")
	return report, nil
}

// importParams maps every tensor the model owns, then fails on leftovers.
func importParams(params paramsMap, model Model) (Report, error) {
	var report Report
	params = params.stripPrefix(dataParallelPrefix)
	for name := range params {
		if hasIgnoredSuffix(name) {
			report.Skipped = append(report.Skipped, name)
			delete(params, name)
		}
	}
	sort.Strings(report.Skipped)

	own := model.StateDict()
	names := make([]string, 0, len(own))
	for name := range own {
		names = append(names, name)
	}
	sort.Strings(names)

	stateDict := make(map[string]*tensor.RawTensor, len(own))
	for _, name := range names {
		t, err := params.fetch(name)
		if err != nil {
			return Report{}, err
		}
		raw, err := convertTensor(t, own[name].Shape())
		if err != nil {
			return Report{}, fmt.Errorf("%s: %w", name, err)
		}
		stateDict[name] = raw
	}

	if len(params) > 0 {
		return Report{}, fmt.Errorf("%w: %v", ErrUnexpectedParameter, params.names())
	}
	if err := model.LoadStateDict(stateDict); err != nil {
		return Report{}, err
	}
	report.Loaded = len(stateDict)
	return report, nil
}

// convertTensor copies a contiguous PyTorch tensor into a float32 raw
// tensor of the expected shape.
func convertTensor(t *pytorch.Tensor, want tensor.Shape) (*tensor.RawTensor, error) {
	if !want.Equal(tensor.Shape(t.Size)) {
		return nil, fmt.Errorf("%w: expected %v, got %v", ErrShapeMismatch, want, t.Size)
	}
	if !isContiguous(t) {
		return nil, fmt.Errorf("non-contiguous tensor (stride %v)", t.Stride)
	}
	data, err := tensorData(t)
	if err != nil {
		return nil, err
	}
	raw, err := tensor.NewRaw(want, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat32(), data)
	return raw, nil
}

func tensorData(t *pytorch.Tensor) ([]float32, error) {
	size := tensorDataSize(t)
	start, end := t.StorageOffset, t.StorageOffset+size

	switch st := t.Source.(type) {
	case *pytorch.FloatStorage:
		if end > len(st.Data) {
			return nil, fmt.Errorf("storage holds %d values, tensor needs [%d, %d)", len(st.Data), start, end)
		}
		return st.Data[start:end], nil
	case *pytorch.HalfStorage:
		if end > len(st.Data) {
			return nil, fmt.Errorf("storage holds %d values, tensor needs [%d, %d)", len(st.Data), start, end)
		}
		return st.Data[start:end], nil
	case *pytorch.BFloat16Storage:
		if end > len(st.Data) {
			return nil, fmt.Errorf("storage holds %d values, tensor needs [%d, %d)", len(st.Data), start, end)
		}
		return st.Data[start:end], nil
	case *pytorch.DoubleStorage:
		if end > len(st.Data) {
			return nil, fmt.Errorf("storage holds %d values, tensor needs [%d, %d)", len(st.Data), start, end)
		}
		out := make([]float32, size)
		for i, v := range st.Data[start:end] {
			out[i] = float32(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedStorage, t.Source)
	}
}

func isContiguous(t *pytorch.Tensor) bool {
	if len(t.Stride) == 0 {
		return true
	}
	expected := 1
	for i := len(t.Size) - 1; i >= 0; i-- {
		if t.Size[i] != 1 && t.Stride[i] != expected {
			return false
		}
		expected *= t.Size[i]
	}
	return true
}

func tensorDataSize(t *pytorch.Tensor) int {
	size := 1
	for _, v := range t.Size {
		size *= v
	}
	return size
}

func hasIgnoredSuffix(name string) bool {
	for _, suffix := range ignoredSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func cast[T any](v any) (t T, _ error) {
	t, ok := v.(T)
	if !ok {
		return t, fmt.Errorf("type assertion failed: expected %T, actual %T", t, v)
	}
	return
}

type paramsMap map[string]*pytorch.Tensor

func makeParamsMap(torchModel any) (paramsMap, error) {
	od, err := cast[*types.OrderedDict](torchModel)
	if err != nil {
		return nil, err
	}

	params := make(paramsMap, od.Len())
	for k, item := range od.Map {
		name, err := cast[string](k)
		if err != nil {
			return nil, fmt.Errorf("wrong param name type: %w", err)
		}
		t, err := cast[*pytorch.Tensor](item.Value)
		if err != nil {
			return nil, fmt.Errorf("wrong value type for param %q: %w", name, err)
		}
		params[name] = t
	}
	return params, nil
}

// fetch gets a value from params by its name, removing the entry from the
// map.
func (p paramsMap) fetch(name string) (*pytorch.Tensor, error) {
	t, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingParameter, name)
	}
	delete(p, name)
	return t, nil
}

// stripPrefix removes prefix from every name, but only when all names
// carry it.
func (p paramsMap) stripPrefix(prefix string) paramsMap {
	for k := range p {
		if !strings.HasPrefix(k, prefix) {
			return p
		}
	}
	out := make(paramsMap, len(p))
	for k, v := range p {
		out[strings.TrimPrefix(k, prefix)] = v
	}
	return out
}

func (p paramsMap) names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
