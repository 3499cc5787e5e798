package pipeline

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/lox/raincouver/internal/preprocess"
)

const (
	PipelineFile     = "precipit_pipeline.gob.zst"
	PreprocessorFile = "precipit_preprocessor.gob.zst"

	artifactVersion = 1
)

type header struct {
	Kind      string
	Version   int
	CreatedAt time.Time
}

// WriteArtifact gob-encodes v behind a kind header and zstd-compresses the
// stream.
func WriteArtifact(w io.Writer, kind string, v any) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	g := gob.NewEncoder(enc)
	if err := g.Encode(header{Kind: kind, Version: artifactVersion, CreatedAt: time.Now().UTC()}); err != nil {
		enc.Close()
		return fmt.Errorf("encode header: %w", err)
	}
	if err := g.Encode(v); err != nil {
		enc.Close()
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	return enc.Close()
}

// ReadArtifact decodes an artifact written by WriteArtifact into v.
func ReadArtifact(r io.Reader, kind string, v any) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	g := gob.NewDecoder(dec)
	var h header
	if err := g.Decode(&h); err != nil {
		return fmt.Errorf("decode header: %w", err)
	}
	if h.Kind != kind {
		return fmt.Errorf("artifact holds %q, want %q", h.Kind, kind)
	}
	if h.Version != artifactVersion {
		return fmt.Errorf("artifact version %d not supported", h.Version)
	}
	if err := g.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

func writeFile(path, kind string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteArtifact(tmp, kind, v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readFile(path, kind string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := ReadArtifact(f, kind, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Save writes p to path, replacing any previous pipeline.
func Save(path string, p *Pipeline) error {
	return writeFile(path, "pipeline", p)
}

func Load(path string) (*Pipeline, error) {
	var p Pipeline
	if err := readFile(path, "pipeline", &p); err != nil {
		return nil, err
	}
	if p.Preprocessor == nil || p.Model == nil {
		return nil, fmt.Errorf("%s: incomplete pipeline", path)
	}
	return &p, nil
}

func SavePreprocessor(path string, pre *preprocess.Preprocessor) error {
	return writeFile(path, "preprocessor", pre)
}

func LoadPreprocessor(path string) (*preprocess.Preprocessor, error) {
	var pre preprocess.Preprocessor
	if err := readFile(path, "preprocessor", &pre); err != nil {
		return nil, err
	}
	return &pre, nil
}
