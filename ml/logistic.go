package ml

import (
	"math"
)

const (
	DefaultLogisticC       = 1.0
	DefaultLogisticMaxIter = 2000
	defaultLogisticTol     = 1e-4
)

// LogisticRegression is a multinomial (softmax) classifier with an L2 penalty on the
// weights and class-balanced sample weights. It is fit by full-batch gradient descent
// with a backtracking line search, so a given training set always yields the same model.
type LogisticRegression struct {
	C        float64     `json:"c"`
	MaxIter  int         `json:"max_iter"`
	Balanced bool        `json:"balanced"`
	Weights  [][]float64 `json:"weights"`
	Bias     []float64   `json:"bias"`
	Iter     int         `json:"n_iter"`
}

func NewLogisticRegression(c float64, maxIter int, balanced bool) *LogisticRegression {
	if c <= 0 {
		c = DefaultLogisticC
	}
	if maxIter <= 0 {
		maxIter = DefaultLogisticMaxIter
	}
	return &LogisticRegression{C: c, MaxIter: maxIter, Balanced: balanced}
}

type softmaxProblem struct {
	x       [][]float64
	y       []int
	sw      []float64
	total   float64
	classes int
	width   int
	alpha   float64
}

// params layout: classes rows of (width weights followed by one bias).
func (p *softmaxProblem) stride() int { return p.width + 1 }

func (p *softmaxProblem) scores(params []float64, row []float64, out []float64) {
	stride := p.stride()
	for k := 0; k < p.classes; k++ {
		w := params[k*stride : (k+1)*stride]
		z := w[p.width]
		for j, v := range row {
			z += w[j] * v
		}
		out[k] = z
	}
}

func (p *softmaxProblem) penalty(params []float64) float64 {
	stride := p.stride()
	var sum float64
	for k := 0; k < p.classes; k++ {
		for j := 0; j < p.width; j++ {
			w := params[k*stride+j]
			sum += w * w
		}
	}
	return 0.5 * p.alpha * sum
}

func (p *softmaxProblem) loss(params []float64) float64 {
	z := make([]float64, p.classes)
	var total float64
	for i, row := range p.x {
		p.scores(params, row, z)
		total += p.sw[i] * (logSumExp(z) - z[p.y[i]])
	}
	return total/p.total + p.penalty(params)
}

func (p *softmaxProblem) lossGrad(params []float64, grad []float64) float64 {
	for i := range grad {
		grad[i] = 0
	}
	stride := p.stride()
	z := make([]float64, p.classes)
	var total float64
	for i, row := range p.x {
		p.scores(params, row, z)
		lse := logSumExp(z)
		total += p.sw[i] * (lse - z[p.y[i]])
		for k := 0; k < p.classes; k++ {
			r := math.Exp(z[k] - lse)
			if k == p.y[i] {
				r--
			}
			r *= p.sw[i] / p.total
			g := grad[k*stride : (k+1)*stride]
			for j, v := range row {
				g[j] += r * v
			}
			g[p.width] += r
		}
	}
	for k := 0; k < p.classes; k++ {
		for j := 0; j < p.width; j++ {
			grad[k*stride+j] += p.alpha * params[k*stride+j]
		}
	}
	return total/p.total + p.penalty(params)
}

func (m *LogisticRegression) Fit(features [][]float64, labels []int) error {
	width, classes, err := validateTrainingSet(features, labels)
	if err != nil {
		return err
	}
	if m.C <= 0 {
		m.C = DefaultLogisticC
	}
	if m.MaxIter <= 0 {
		m.MaxIter = DefaultLogisticMaxIter
	}

	sw := make([]float64, len(labels))
	var classWeights []float64
	if m.Balanced {
		classWeights = balancedWeights(labels, classes)
	}
	var total float64
	for i, label := range labels {
		sw[i] = 1
		if classWeights != nil {
			sw[i] = classWeights[label]
		}
		total += sw[i]
	}

	prob := &softmaxProblem{
		x:       features,
		y:       labels,
		sw:      sw,
		total:   total,
		classes: classes,
		width:   width,
		// scikit minimizes C*sum(loss) + ||w||^2/2; dividing by C*total keeps the same optimum.
		alpha: 1 / (m.C * total),
	}

	params := make([]float64, classes*prob.stride())
	grad := make([]float64, len(params))
	next := make([]float64, len(params))
	loss := prob.lossGrad(params, grad)
	step := 1.0
	iter := 0
	for ; iter < m.MaxIter; iter++ {
		gradNorm2, gradMax := 0.0, 0.0
		for _, g := range grad {
			gradNorm2 += g * g
			if a := math.Abs(g); a > gradMax {
				gradMax = a
			}
		}
		if gradMax < defaultLogisticTol {
			break
		}

		accepted := false
		for step > 1e-12 {
			for i := range params {
				next[i] = params[i] - step*grad[i]
			}
			candidate := prob.loss(next)
			if candidate <= loss-0.5*step*gradNorm2 {
				accepted = true
				break
			}
			step /= 2
		}
		if !accepted {
			break
		}
		params, next = next, params
		loss = prob.lossGrad(params, grad)
		step *= 2
	}

	stride := prob.stride()
	m.Weights = make([][]float64, classes)
	m.Bias = make([]float64, classes)
	for k := 0; k < classes; k++ {
		m.Weights[k] = append([]float64(nil), params[k*stride:k*stride+width]...)
		m.Bias[k] = params[k*stride+width]
	}
	m.Iter = iter
	return nil
}

// PredictProba returns softmax class probabilities.
func (m *LogisticRegression) PredictProba(features []float64) ([]float64, error) {
	if len(m.Weights) == 0 {
		return nil, ErrNotTrained
	}
	if len(features) != len(m.Weights[0]) {
		return nil, ErrFeatureLength
	}
	z := make([]float64, len(m.Weights))
	for k, w := range m.Weights {
		z[k] = m.Bias[k]
		for j, v := range features {
			z[k] += w[j] * v
		}
	}
	lse := logSumExp(z)
	for k := range z {
		z[k] = math.Exp(z[k] - lse)
	}
	return z, nil
}

func (m *LogisticRegression) Predict(features []float64) (int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

func logSumExp(z []float64) float64 {
	hi := math.Inf(-1)
	for _, v := range z {
		if v > hi {
			hi = v
		}
	}
	var sum float64
	for _, v := range z {
		sum += math.Exp(v - hi)
	}
	return hi + math.Log(sum)
}
