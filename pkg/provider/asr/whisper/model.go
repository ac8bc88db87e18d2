package whisper

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// weightFiles lists the ggml file names tried for each precision, in order.
var weightFiles = map[asr.Precision][]string{
	asr.PrecisionFP16: {"ggml-model-f16.bin", "ggml-model.bin", "ggml-model-f32.bin"},
	asr.PrecisionFP32: {"ggml-model-f32.bin", "ggml-model.bin", "ggml-model-f16.bin"},
}

// ResolveModelPath maps a model identity to a ggml weight file. An identity
// naming an existing file is used as-is. Otherwise the identity is treated
// as a directory under dir (for example "vinai/PhoWhisper-small") holding
// weights converted for whisper.cpp, and the file matching prec is preferred.
func ResolveModelPath(dir, model string, prec asr.Precision) (string, error) {
	if st, err := os.Stat(model); err == nil && st.Mode().IsRegular() {
		return model, nil
	}

	base := filepath.Join(dir, filepath.FromSlash(model))
	names, ok := weightFiles[prec]
	if !ok {
		names = weightFiles[asr.PrecisionFP32]
	}
	for _, name := range names {
		p := filepath.Join(base, name)
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("whisper: no ggml weights for %q in %s: %w", model, base, fs.ErrNotExist)
}
