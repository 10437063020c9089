package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const DefaultModel = "tiny"

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Model is a downloadable ggml weight file.
type Model struct {
	Name      string
	FileName  string
	URL       string
	SHA256    string
	SHA256URL string
	// Label describes the speed/accuracy trade-off for pickers.
	Label string
	// SizeMB is the approximate download size.
	SizeMB int
}

type ResolvedModel struct {
	Name          string
	Path          string
	URL           string
	SHA256        string
	SHA256URL     string
	NeedsDownload bool
	IsCustomPath  bool
}

// catalog is ordered from fastest to most accurate.
var catalog = []Model{
	hosted("tiny", "ggml-tiny.bin", "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21", "fastest", 75),
	hosted("small", "ggml-small.bin", "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b", "balanced", 466),
	hosted("medium", "ggml-medium.bin", "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208", "accurate", 1500),
	hosted("large", "ggml-large-v3.bin", "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2", "most accurate", 3100),
}

func hosted(name, file, sum, label string, sizeMB int) Model {
	return Model{
		Name:     name,
		FileName: file,
		URL:      modelBaseURL + file,
		SHA256:   sum,
		Label:    label,
		SizeMB:   sizeMB,
	}
}

// Models returns the catalog from fastest to most accurate.
func Models() []Model {
	return append([]Model(nil), catalog...)
}

// ModelNames returns the known model identifiers from fastest to most accurate.
func ModelNames() []string {
	names := make([]string, len(catalog))
	for i, m := range catalog {
		names[i] = m.Name
	}
	return names
}

func LookupModel(name string) (Model, bool) {
	for _, m := range catalog {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// Describe renders a one-line summary such as "tiny (fastest, ~75 MB)".
func (m Model) Describe() string {
	if m.SizeMB >= 1000 {
		return fmt.Sprintf("%s (%s, ~%.1f GB)", m.Name, m.Label, float64(m.SizeMB)/1000)
	}
	return fmt.Sprintf("%s (%s, ~%d MB)", m.Name, m.Label, m.SizeMB)
}

// IsKnownModel reports whether ref names a catalog model or a model file path.
func IsKnownModel(ref string) bool {
	if _, ok := LookupModel(ref); ok {
		return true
	}
	return looksLikePath(ref)
}

// ResolveModel maps a catalog name to its location under modelDir, or
// validates ref as a path to a custom ggml file. An empty ref selects
// DefaultModel.
func ResolveModel(ref, modelDir string) (ResolvedModel, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = DefaultModel
	}

	if model, ok := LookupModel(ref); ok {
		return resolveCatalogModel(model, modelDir)
	}
	if !looksLikePath(ref) {
		return ResolvedModel{}, fmt.Errorf("unknown model %q (known models: %s)", ref, strings.Join(ModelNames(), ", "))
	}
	return resolveCustomModel(filepath.Clean(ref))
}

func resolveCatalogModel(model Model, modelDir string) (ResolvedModel, error) {
	if strings.TrimSpace(modelDir) == "" {
		return ResolvedModel{}, errors.New("model directory must not be empty for named model")
	}

	resolved := ResolvedModel{
		Name:      model.Name,
		Path:      filepath.Join(modelDir, model.FileName),
		URL:       model.URL,
		SHA256:    model.SHA256,
		SHA256URL: model.SHA256URL,
	}

	switch _, err := os.Stat(resolved.Path); {
	case errors.Is(err, os.ErrNotExist):
		resolved.NeedsDownload = true
	case err != nil:
		return ResolvedModel{}, fmt.Errorf("stat model path: %w", err)
	}
	return resolved, nil
}

func resolveCustomModel(path string) (ResolvedModel, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return ResolvedModel{}, fmt.Errorf("custom model path does not exist: %s", path)
	case err != nil:
		return ResolvedModel{}, fmt.Errorf("stat custom model path: %w", err)
	case info.IsDir():
		return ResolvedModel{}, fmt.Errorf("custom model path is a directory: %s", path)
	}

	return ResolvedModel{
		Name:         filepath.Base(path),
		Path:         path,
		IsCustomPath: true,
	}, nil
}

func looksLikePath(input string) bool {
	return strings.ContainsRune(input, os.PathSeparator) || strings.HasSuffix(strings.ToLower(input), ".bin")
}
