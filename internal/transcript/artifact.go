package transcript

import (
	"fmt"
	"os"
	"path/filepath"
)

type Kind string

const (
	KindSRT Kind = "srt"
	KindTXT Kind = "txt"
)

const fileSuffix = "_transcription"

// Artifact is one generated output document.
type Artifact struct {
	Kind     Kind
	FileName string
	Content  string
}

func FileName(base string, kind Kind) string {
	return base + fileSuffix + "." + string(kind)
}

// BuildArtifacts renders the subtitle and plain-text documents for segments.
func BuildArtifacts(base string, segments []Segment) (Artifact, Artifact) {
	srt := Artifact{Kind: KindSRT, FileName: FileName(base, KindSRT), Content: GenerateSRT(segments)}
	txt := Artifact{Kind: KindTXT, FileName: FileName(base, KindTXT), Content: GenerateTXT(segments)}
	return srt, txt
}

// WriteAll writes every artifact into dir and returns their paths in order.
// Either all files are written or none are left behind.
func WriteAll(dir string, artifacts ...Artifact) ([]string, error) {
	paths := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		path := filepath.Join(dir, artifact.FileName)
		if err := os.WriteFile(path, []byte(artifact.Content), 0o644); err != nil {
			for _, written := range paths {
				_ = os.Remove(written)
			}
			_ = os.Remove(path)
			return nil, fmt.Errorf("write %s: %w", artifact.FileName, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// IsArtifactName reports whether name looks like a file produced by
// BuildArtifacts. It rejects anything containing a path separator.
func IsArtifactName(name string) bool {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return false
	}
	for _, kind := range []Kind{KindSRT, KindTXT} {
		suffix := fileSuffix + "." + string(kind)
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}
