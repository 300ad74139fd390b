package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Supported artifact formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Artifact base names, written side by side in one directory.
const (
	IndexBaseName       = "inverted_index"
	DocumentMapBaseName = "document_map"
)

// Paths returns the index and document map artifact paths for format.
func Paths(dir, format string) (indexPath, docMapPath string, err error) {
	format, err = normalizeFormat(format)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, IndexBaseName+"."+format),
		filepath.Join(dir, DocumentMapBaseName+"."+format),
		nil
}

func normalizeFormat(format string) (string, error) {
	switch format {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported index format %q", format)
	}
}

// Save writes the index and document map to dir. Each artifact is written to
// a temporary file and renamed into place.
func Save(dir string, idx InvertedIndex, docs DocumentMap, format string) error {
	indexPath, docMapPath, err := Paths(dir, format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	format, _ = normalizeFormat(format)

	if idx == nil {
		idx = InvertedIndex{}
	}
	if docs == nil {
		docs = DocumentMap{}
	}
	data, err := encode(idx, format)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := writeAtomic(indexPath, data); err != nil {
		return err
	}
	data, err = encode(docs, format)
	if err != nil {
		return fmt.Errorf("encode document map: %w", err)
	}
	return writeAtomic(docMapPath, data)
}

// Load reads the artifacts written by Save.
func Load(dir, format string) (InvertedIndex, DocumentMap, error) {
	indexPath, docMapPath, err := Paths(dir, format)
	if err != nil {
		return nil, nil, err
	}
	format, _ = normalizeFormat(format)

	idx := InvertedIndex{}
	if err := decodeFile(indexPath, format, &idx); err != nil {
		return nil, nil, err
	}
	for term, pl := range idx {
		if pl == nil {
			return nil, nil, fmt.Errorf("term %q has no posting list", term)
		}
		if pl.Postings == nil {
			pl.Postings = map[int]int{}
		}
	}
	docs := DocumentMap{}
	if err := decodeFile(docMapPath, format, &docs); err != nil {
		return nil, nil, err
	}
	return idx, docs, nil
}

func encode(v any, format string) ([]byte, error) {
	var buf bytes.Buffer
	if format == FormatYAML {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFile(path, format string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if format == FormatYAML {
		err = yaml.Unmarshal(data, v)
	} else {
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
