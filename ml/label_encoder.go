package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

var ErrUnknownLabel = errors.New("unknown label")

// LabelEncoder maps string labels to codes. The code of a label is its position in the
// sorted set of labels seen by Fit.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

func NewLabelEncoder(classes []string) *LabelEncoder {
	e := &LabelEncoder{}
	e.setClasses(classes)
	return e
}

func (e *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return errors.New("labels is empty")
	}
	seen := make(map[string]struct{})
	classes := make([]string, 0)
	for _, label := range labels {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		classes = append(classes, label)
	}
	sort.Strings(classes)
	e.setClasses(classes)
	return nil
}

func (e *LabelEncoder) FitTransform(labels []string) ([]int, error) {
	if err := e.Fit(labels); err != nil {
		return nil, err
	}
	return e.Transform(labels)
}

func (e *LabelEncoder) Transform(labels []string) ([]int, error) {
	if len(e.classes) == 0 {
		return nil, ErrNotTrained
	}
	codes := make([]int, len(labels))
	for i, label := range labels {
		code, ok := e.index[label]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
		}
		codes[i] = code
	}
	return codes, nil
}

func (e *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	if len(e.classes) == 0 {
		return nil, ErrNotTrained
	}
	labels := make([]string, len(codes))
	for i, code := range codes {
		if code < 0 || code >= len(e.classes) {
			return nil, fmt.Errorf("%w: code %d", ErrUnknownLabel, code)
		}
		labels[i] = e.classes[code]
	}
	return labels, nil
}

// Classes returns the learned labels indexed by code.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Mapping returns label -> code, handy for logging the learned encoding.
func (e *LabelEncoder) Mapping() map[string]int {
	out := make(map[string]int, len(e.index))
	for k, v := range e.index {
		out[k] = v
	}
	return out
}

func (e *LabelEncoder) setClasses(classes []string) {
	e.classes = append([]string(nil), classes...)
	e.index = make(map[string]int, len(classes))
	for i, c := range e.classes {
		e.index[c] = i
	}
}

type labelEncoderFile struct {
	Classes []string `json:"classes"`
}

func (e *LabelEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(labelEncoderFile{Classes: e.classes})
}

func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	var file labelEncoderFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(file.Classes))
	for _, c := range file.Classes {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("duplicate class %q in encoder", c)
		}
		seen[c] = struct{}{}
	}
	e.setClasses(file.Classes)
	return nil
}

func (e *LabelEncoder) Save(path string) error {
	if len(e.classes) == 0 {
		return ErrNotTrained
	}
	payload, err := json.MarshalIndent(e, "", "    ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, payload)
}

func LoadLabelEncoder(path string) (*LabelEncoder, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	e := &LabelEncoder{}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("decode label encoder %s: %w", path, err)
	}
	if len(e.classes) == 0 {
		return nil, fmt.Errorf("label encoder %s has no classes", path)
	}
	return e, nil
}
