package ml

// Pipeline optionally standardizes features before handing them to a classifier, so the
// unit can be fit and invoked on raw feature rows.
type Pipeline struct {
	Scaler *StandardScaler
	Model  Classifier
}

func NewScaledPipeline(model Classifier) *Pipeline {
	return &Pipeline{Scaler: &StandardScaler{}, Model: model}
}

func (p *Pipeline) Fit(features [][]float64, labels []int) error {
	if p.Scaler == nil {
		return p.Model.Fit(features, labels)
	}
	scaled, err := p.Scaler.FitTransform(features)
	if err != nil {
		return err
	}
	return p.Model.Fit(scaled, labels)
}

func (p *Pipeline) Predict(features []float64) (int, error) {
	if p.Scaler == nil {
		return p.Model.Predict(features)
	}
	scaled, err := p.Scaler.TransformRow(features)
	if err != nil {
		return 0, err
	}
	return p.Model.Predict(scaled)
}
