package task

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the file and wire form of a Task. Inputs are hex strings.
type Document struct {
	ID        string   `json:"id" yaml:"id"`
	ProgramID string   `json:"program_id" yaml:"program_id"`
	Type      Type     `json:"type" yaml:"type"`
	Inputs    []string `json:"inputs" yaml:"inputs"`
}

// Task decodes the hex inputs and returns the validated Task.
func (d Document) Task() (*Task, error) {
	t := &Task{
		ID:        d.ID,
		ProgramID: d.ProgramID,
		Type:      d.Type,
		Inputs:    make([][]byte, 0, len(d.Inputs)),
	}
	for i, s := range d.Inputs {
		s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("inputs[%d]: invalid hex: %w", i, err)
		}
		t.Inputs = append(t.Inputs, b)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// DocumentOf encodes t for storage or transport.
func DocumentOf(t *Task) Document {
	d := Document{
		ID:        t.ID,
		ProgramID: t.ProgramID,
		Type:      t.Type,
		Inputs:    make([]string, len(t.Inputs)),
	}
	for i, in := range t.Inputs {
		d.Inputs[i] = hex.EncodeToString(in)
	}
	return d
}

// Decode parses a JSON or YAML document. JSON is detected by a leading '{'.
func Decode(data []byte) (*Task, error) {
	var doc Document
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode task json: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(trimmed))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode task yaml: %w", err)
		}
	}
	return doc.Task()
}

// LoadFile reads a task document from path. A missing id defaults to the file name.
func LoadFile(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	t, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if t.ID == "" {
		t.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return t, nil
}
