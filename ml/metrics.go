package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ClassMetrics is one row of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// ClassificationReport mirrors the per-class precision/recall/F1 table plus the
// accuracy, macro and support-weighted averages.
type ClassificationReport struct {
	Labels      []string
	PerClass    []ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
}

// ModelStats is the document served by GET /stats.
type ModelStats struct {
	Accuracy float64               `json:"accuracy"`
	Report   *ClassificationReport `json:"classification_report"`
}

func Accuracy(yTrue, yPred []int) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, ErrSizeMismatch
	}
	if len(yTrue) == 0 {
		return 0, errors.New("no predictions to score")
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// NewClassificationReport scores yPred against yTrue. labels[c] names class code c;
// undefined ratios (no predictions or no support) are reported as 0.
func NewClassificationReport(yTrue, yPred []int, labels []string) (*ClassificationReport, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	k := len(labels)
	tp := make([]int, k)
	predicted := make([]int, k)
	actual := make([]int, k)
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= k || p < 0 || p >= k {
			return nil, fmt.Errorf("class code out of range: true=%d pred=%d", t, p)
		}
		actual[t]++
		predicted[p]++
		if t == p {
			tp[t]++
		}
	}

	report := &ClassificationReport{
		Labels:   append([]string(nil), labels...),
		PerClass: make([]ClassMetrics, k),
		Accuracy: acc,
	}
	total := len(yTrue)
	for c := 0; c < k; c++ {
		m := ClassMetrics{Support: actual[c]}
		m.Precision = ratio(tp[c], predicted[c])
		m.Recall = ratio(tp[c], actual[c])
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.PerClass[c] = m

		report.MacroAvg.Precision += m.Precision / float64(k)
		report.MacroAvg.Recall += m.Recall / float64(k)
		report.MacroAvg.F1 += m.F1 / float64(k)

		w := float64(m.Support) / float64(total)
		report.WeightedAvg.Precision += m.Precision * w
		report.WeightedAvg.Recall += m.Recall * w
		report.WeightedAvg.F1 += m.F1 * w
	}
	report.MacroAvg.Support = total
	report.WeightedAvg.Support = total
	return report, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Class returns the metrics for a label name.
func (r *ClassificationReport) Class(label string) (ClassMetrics, bool) {
	for i, l := range r.Labels {
		if l == label {
			return r.PerClass[i], true
		}
	}
	return ClassMetrics{}, false
}

// MarshalJSON flattens the report into a single object keyed by class name, with
// "accuracy", "macro avg" and "weighted avg" alongside.
func (r *ClassificationReport) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Labels)+3)
	for i, label := range r.Labels {
		out[label] = r.PerClass[i]
	}
	out["accuracy"] = r.Accuracy
	out["macro avg"] = r.MacroAvg
	out["weighted avg"] = r.WeightedAvg
	return json.Marshal(out)
}

func (r *ClassificationReport) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ClassificationReport{}
	for key, value := range raw {
		var err error
		switch key {
		case "accuracy":
			err = json.Unmarshal(value, &r.Accuracy)
		case "macro avg":
			err = json.Unmarshal(value, &r.MacroAvg)
		case "weighted avg":
			err = json.Unmarshal(value, &r.WeightedAvg)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	labels := make([]string, 0, len(raw))
	for key := range raw {
		if key != "accuracy" && key != "macro avg" && key != "weighted avg" {
			labels = append(labels, key)
		}
	}
	sort.Strings(labels)
	for _, label := range labels {
		var m ClassMetrics
		if err := json.Unmarshal(raw[label], &m); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		r.Labels = append(r.Labels, label)
		r.PerClass = append(r.PerClass, m)
	}
	return nil
}

// String renders the report as a fixed-width text table.
func (r *ClassificationReport) String() string {
	width := len("weighted avg")
	for _, l := range r.Labels {
		if len(l) > width {
			width = len(l)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for i, l := range r.Labels {
		m := r.PerClass[i]
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, l, m.Precision, m.Recall, m.F1, m.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	for _, row := range []struct {
		name string
		m    ClassMetrics
	}{{"macro avg", r.MacroAvg}, {"weighted avg", r.WeightedAvg}} {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, row.name, row.m.Precision, row.m.Recall, row.m.F1, row.m.Support)
	}
	return b.String()
}
