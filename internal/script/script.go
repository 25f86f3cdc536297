// Package script reads instruction scripts: a list of ticks, each a batch
// of instruction messages received together before that tick runs.
//
//	ticks:
//	  - messages:
//	      - {unit: control, control: {op: create_object, object: 1, replicas: 1}}
//	      - {unit: cpu, opcode: sleep, operands: [{kind: mutable, object: 1}, {kind: value, value: 5}]}
//	  - messages: []
//
// JSON is accepted too, being a subset of YAML.
package script

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/govm/pkg/model"
)

// Script is a sequence of tick batches.
type Script struct {
	Ticks []Batch `yaml:"ticks" json:"ticks"`
}

// Batch is the set of messages received ahead of one tick.
type Batch struct {
	Messages []*model.InstructionMessage `yaml:"messages" json:"messages"`
}

// Load reads and parses a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a script and validates every message. Unknown fields are
// rejected.
func Parse(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	var details []model.FieldError
	for i, b := range s.Ticks {
		for j, m := range b.Messages {
			if m == nil {
				details = append(details, model.FieldError{Field: fmt.Sprintf("ticks[%d].messages[%d]", i, j), Message: "empty message"})
				continue
			}
			for _, fe := range m.Validate() {
				fe.Field = fmt.Sprintf("ticks[%d].messages[%d].%s", i, j, fe.Field)
				details = append(details, fe)
			}
		}
	}
	if len(details) > 0 {
		return nil, model.NewValidationError("invalid script", details...)
	}
	return &s, nil
}

// Messages flattens every batch in tick order.
func (s *Script) Messages() []*model.InstructionMessage {
	var out []*model.InstructionMessage
	for _, b := range s.Ticks {
		out = append(out, b.Messages...)
	}
	return out
}

// Len returns the total message count.
func (s *Script) Len() int {
	n := 0
	for _, b := range s.Ticks {
		n += len(b.Messages)
	}
	return n
}
