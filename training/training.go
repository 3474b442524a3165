// Package training fits the KOI disposition ensemble and writes its artifacts.
package training

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"exoclassifier/config"
	"exoclassifier/db"
	"exoclassifier/ml"
	"exoclassifier/pipeline"
)

// EnsembleName is the name under which the final voting model is evaluated and logged.
const EnsembleName = "voting"

// Evaluation is the held-out score of one model.
type Evaluation struct {
	Name     string
	Accuracy float64
	Report   *ml.ClassificationReport
}

// Result summarizes a training run.
type Result struct {
	RunID       string
	Classes     []string
	TrainSize   int
	TestSize    int
	Cleaning    pipeline.CleaningStats
	Evaluations []Evaluation
	Stats       ml.ModelStats
}

// Run loads the dataset, trains and evaluates each learner, fits the voting ensemble,
// and writes the model, encoder and stats artifacts.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))
	started := time.Now()

	ds, err := pipeline.LoadDataset(cfg.Training.Dataset, pipeline.NewDataCleaner(logger))
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	logger.Info("dataset loaded",
		zap.String("path", cfg.Training.Dataset),
		zap.Int64("rows", ds.Stats.TotalProcessed),
		zap.Int64("kept", ds.Stats.Passed),
		zap.Int64("dropped", ds.Stats.Rejected))
	if ds.Len() < 2 {
		return nil, fmt.Errorf("load dataset: %w", ml.ErrEmptyDataset)
	}

	encoder := &ml.LabelEncoder{}
	labels, err := encoder.FitTransform(ds.Labels)
	if err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}
	logger.Info("label mapping", zap.Any("mapping", encoder.Mapping()))
	classes := encoder.Classes()

	split, err := ml.StratifiedSplit(labels, cfg.Training.TestRatio, cfg.Training.Seed)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	trainX, trainY := ml.Take(ds.Features, labels, split.Train)
	testX, testY := ml.Take(ds.Features, labels, split.Test)
	logger.Info("dataset split", zap.Int("train", len(trainY)), zap.Int("test", len(testY)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:     runID,
		Classes:   classes,
		TrainSize: len(trainY),
		TestSize:  len(testY),
		Cleaning:  ds.Stats,
	}

	scaler := &ml.StandardScaler{}
	trainScaled, err := scaler.FitTransform(trainX)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	testScaled, err := scaler.Transform(testX)
	if err != nil {
		return nil, fmt.Errorf("scale test set: %w", err)
	}

	individual := []struct {
		name   string
		model  ml.Classifier
		scaled bool
	}{
		{"knn", ml.NewKNN(cfg.Training.Neighbors), true},
		{"lr", ml.NewLogisticRegression(cfg.Training.C, cfg.Training.MaxIter, true), true},
		{"rf", newForest(cfg), false},
	}
	for _, m := range individual {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fitX, evalX := trainX, testX
		if m.scaled {
			fitX, evalX = trainScaled, testScaled
		}
		if err := m.model.Fit(fitX, trainY); err != nil {
			return nil, fmt.Errorf("fit %s: %w", m.name, err)
		}
		eval, err := evaluate(m.name, m.model, evalX, testY, classes)
		if err != nil {
			return nil, err
		}
		logEvaluation(logger, eval)
		result.Evaluations = append(result.Evaluations, eval)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ensemble := NewEnsemble(cfg)
	if err := ensemble.Fit(trainX, trainY); err != nil {
		return nil, fmt.Errorf("fit ensemble: %w", err)
	}
	eval, err := evaluate(EnsembleName, ensemble, testX, testY, classes)
	if err != nil {
		return nil, err
	}
	logEvaluation(logger, eval)
	result.Evaluations = append(result.Evaluations, eval)
	result.Stats = ml.ModelStats{Accuracy: eval.Accuracy, Report: eval.Report}

	if err := ml.WriteJSON(cfg.Artifacts.Stats, result.Stats); err != nil {
		return nil, fmt.Errorf("write stats: %w", err)
	}
	if err := ensemble.Save(cfg.Artifacts.Model); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	if err := encoder.Save(cfg.Artifacts.Encoder); err != nil {
		return nil, fmt.Errorf("save label encoder: %w", err)
	}
	logger.Info("artifacts written",
		zap.String("model", cfg.Artifacts.Model),
		zap.String("encoder", cfg.Artifacts.Encoder),
		zap.String("stats", cfg.Artifacts.Stats))

	if cfg.Database.Path != "" {
		if err := recordHistory(ctx, cfg.Database.Path, result, started); err != nil {
			return nil, fmt.Errorf("record training history: %w", err)
		}
	}

	logger.Info("training finished", zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

// NewEnsemble returns the unfitted hard-voting ensemble: scaled logistic regression,
// unscaled random forest and scaled KNN, in that order.
func NewEnsemble(cfg *config.Config) *ml.VotingClassifier {
	return ml.NewVotingClassifier(
		ml.Estimator{Name: "lr", Model: ml.NewScaledPipeline(ml.NewLogisticRegression(cfg.Training.C, cfg.Training.MaxIter, true))},
		ml.Estimator{Name: "rf", Model: &ml.Pipeline{Model: newForest(cfg)}},
		ml.Estimator{Name: "knn", Model: ml.NewScaledPipeline(ml.NewKNN(cfg.Training.Neighbors))},
	)
}

func newForest(cfg *config.Config) *ml.RandomForest {
	rf := ml.NewRandomForest(cfg.Training.Trees, cfg.Training.Seed, true)
	rf.Workers = cfg.Training.Workers
	return rf
}

func evaluate(name string, model ml.Classifier, x [][]float64, y []int, classes []string) (Evaluation, error) {
	predicted, err := ml.PredictAll(model, x)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", name, err)
	}
	report, err := ml.NewClassificationReport(y, predicted, classes)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", name, err)
	}
	return Evaluation{Name: name, Accuracy: report.Accuracy, Report: report}, nil
}

func logEvaluation(logger *zap.Logger, eval Evaluation) {
	logger.Info("model evaluated",
		zap.String("model", eval.Name),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Float64("macro_f1", eval.Report.MacroAvg.F1))
	logger.Debug("classification report", zap.String("model", eval.Name), zap.String("report", eval.Report.String()))
}

func recordHistory(ctx context.Context, path string, result *Result, trainedAt time.Time) error {
	store, err := db.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	logs := make([]db.TrainingLog, 0, len(result.Evaluations))
	for _, eval := range result.Evaluations {
		logs = append(logs, db.TrainingLog{
			RunID:      result.RunID,
			ModelName:  eval.Name,
			Accuracy:   eval.Accuracy,
			MacroF1:    eval.Report.MacroAvg.F1,
			WeightedF1: eval.Report.WeightedAvg.F1,
			TrainSize:  result.TrainSize,
			TestSize:   result.TestSize,
			TrainedAt:  trainedAt,
		})
	}
	return store.RecordTraining(ctx, logs)
}
