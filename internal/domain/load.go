package domain

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadQuestionSet reads a question set from a YAML or JSON file. The file
// holds either a mapping with a "questions" key or a bare list of questions.
func LoadQuestionSet(path string) (*QuestionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question set: %w", err)
	}
	set, err := ParseQuestionSet(data)
	if err != nil {
		return nil, fmt.Errorf("question set %q: %w", path, err)
	}
	return set, nil
}

// ParseQuestionSet decodes and validates a question set document.
func ParseQuestionSet(data []byte) (*QuestionSet, error) {
	var set QuestionSet
	if isSequence(data) {
		if err := yaml.Unmarshal(data, &set.Questions); err != nil {
			return nil, fmt.Errorf("parsing questions: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing questions: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// LoadQAPairs reads manually prepared question/answer pairs from a YAML or
// JSON list.
func LoadQAPairs(path string) ([]QAPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pairs: %w", err)
	}
	var pairs []QAPair
	if err := yaml.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("parsing pairs %q: %w", path, err)
	}
	for i, p := range pairs {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("pair %d in %q: %w", i, path, err)
		}
	}
	return pairs, nil
}

// ReadDocument loads a document from disk. The MIME type is left empty so
// it is derived from the file extension.
func ReadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading document: %w", err)
	}
	return Document{Name: filepath.Base(path), Data: data}, nil
}

// ReferenceDocument resolves path to an absolute DocumentRef after checking
// that it names a regular file.
func ReferenceDocument(path string) (DocumentRef, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return DocumentRef{}, fmt.Errorf("resolving document path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return DocumentRef{}, fmt.Errorf("reading document: %w", err)
	}
	if !info.Mode().IsRegular() {
		return DocumentRef{}, fmt.Errorf("document %q is not a regular file", path)
	}
	return DocumentRef{Name: filepath.Base(abs), Path: abs}, nil
}

func isSequence(data []byte) bool {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil || len(node.Content) == 0 {
		return bytes.HasPrefix(bytes.TrimSpace(data), []byte("["))
	}
	return node.Content[0].Kind == yaml.SequenceNode
}
