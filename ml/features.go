package ml

import (
	"fmt"
)

const (
	// FeatureCount is the width of a KOI feature vector.
	FeatureCount = 12
	// LabelColumn holds the disposition target in the KOI table.
	LabelColumn = "koi_disposition"
)

var featureNames = [FeatureCount]string{
	"koi_fpflag_nt",
	"koi_fpflag_ss",
	"koi_fpflag_co",
	"koi_fpflag_ec",
	"koi_period",
	"koi_duration",
	"koi_depth",
	"koi_prad",
	"koi_teq",
	"koi_insol",
	"koi_model_snr",
	"koi_score",
}

// FeatureNames returns the model input columns in the order the model expects them.
func FeatureNames() []string {
	names := make([]string, FeatureCount)
	copy(names, featureNames[:])
	return names
}

// Observation is one KOI row. Nil fields are missing values and marshal as null.
type Observation struct {
	FPFlagNT   *float64 `json:"koi_fpflag_nt"`
	FPFlagSS   *float64 `json:"koi_fpflag_ss"`
	FPFlagCO   *float64 `json:"koi_fpflag_co"`
	FPFlagEC   *float64 `json:"koi_fpflag_ec"`
	Period     *float64 `json:"koi_period"`
	Duration   *float64 `json:"koi_duration"`
	Depth      *float64 `json:"koi_depth"`
	PlanetRad  *float64 `json:"koi_prad"`
	EquilTemp  *float64 `json:"koi_teq"`
	Insolation *float64 `json:"koi_insol"`
	ModelSNR   *float64 `json:"koi_model_snr"`
	Score      *float64 `json:"koi_score"`
}

func (o *Observation) slots() [FeatureCount]**float64 {
	return [FeatureCount]**float64{
		&o.FPFlagNT,
		&o.FPFlagSS,
		&o.FPFlagCO,
		&o.FPFlagEC,
		&o.Period,
		&o.Duration,
		&o.Depth,
		&o.PlanetRad,
		&o.EquilTemp,
		&o.Insolation,
		&o.ModelSNR,
		&o.Score,
	}
}

// Set stores v in the i-th feature slot. A nil v marks the value missing.
func (o *Observation) Set(i int, v *float64) error {
	if i < 0 || i >= FeatureCount {
		return fmt.Errorf("feature index %d out of range", i)
	}
	*o.slots()[i] = v
	return nil
}

// Value returns the i-th feature and whether it is present.
func (o *Observation) Value(i int) (float64, bool) {
	if i < 0 || i >= FeatureCount {
		return 0, false
	}
	p := *o.slots()[i]
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Complete reports whether every feature is present.
func (o *Observation) Complete() bool {
	for _, slot := range o.slots() {
		if *slot == nil {
			return false
		}
	}
	return true
}

// Vector returns the ordered feature vector. ok is false when any value is missing.
func (o *Observation) Vector() (vector []float64, ok bool) {
	vector = make([]float64, FeatureCount)
	for i, slot := range o.slots() {
		if *slot == nil {
			return nil, false
		}
		vector[i] = **slot
	}
	return vector, true
}

// ObservationFromVector builds a complete Observation from an ordered vector.
func ObservationFromVector(vector []float64) (Observation, error) {
	var o Observation
	if len(vector) != FeatureCount {
		return o, fmt.Errorf("expected %d features, got %d", FeatureCount, len(vector))
	}
	for i := range vector {
		v := vector[i]
		*o.slots()[i] = &v
	}
	return o, nil
}
