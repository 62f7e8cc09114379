package nn

import (
	"fmt"

	"github.com/gopots/gopots/internal/tensor"
)

// StateDict maps parameter names to their storage. The tensors are shared
// with the parameters, not copied.
func StateDict[B tensor.Backend](params []*Parameter[B]) map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		sd[p.name] = p.tensor.Raw()
	}
	return sd
}

// CloneStateDict is StateDict with deep copies, suitable for keeping the
// best weights seen during training.
func CloneStateDict[B tensor.Backend](params []*Parameter[B]) map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		sd[p.name] = p.tensor.Raw().Clone()
	}
	return sd
}

// LoadStateDict copies sd into params in place. Every parameter must be
// present with a matching shape and dtype; extra keys are ignored.
func LoadStateDict[B tensor.Backend](params []*Parameter[B], sd map[string]*tensor.RawTensor) error {
	for _, p := range params {
		src, ok := sd[p.name]
		if !ok {
			return fmt.Errorf("missing parameter %q", p.name)
		}
		if err := p.tensor.Raw().CopyFrom(src); err != nil {
			return fmt.Errorf("parameter %q: %w", p.name, err)
		}
	}
	return nil
}
