package pipeline

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"exoclassifier/ml"
)

// Record is one KOI row read from the source table.
type Record struct {
	Row         int
	Observation ml.Observation
	Disposition *string
}

// CleaningRule inspects a record and returns an error when it must be dropped.
type CleaningRule interface {
	Apply(*Record) (*Record, error)
	Name() string
}

// QualityIssue describes why a record was rejected.
type QualityIssue struct {
	Rule      string    `json:"rule"`
	Message   string    `json:"message"`
	Row       int       `json:"row"`
	Timestamp time.Time `json:"timestamp"`
}

// CleaningStats counts cleaning outcomes.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner runs every rule over each record. A record failing any rule is dropped.
type DataCleaner struct {
	logger *zap.Logger
	rules  []CleaningRule

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewDataCleaner returns a cleaner with the default rule set: drop rows with a missing
// feature or label. No values are imputed.
func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		logger: logger,
		rules:  make([]CleaningRule, 0),
		stats: CleaningStats{
			Issues: make(map[string]int64),
		},
	}
	cleaner.AddRule(NewMissingValueRule())
	return cleaner
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean returns the surviving records in input order along with the issues found.
func (dc *DataCleaner) Clean(records []*Record) ([]*Record, []QualityIssue) {
	var cleaned []*Record
	var issues []QualityIssue

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	for _, record := range records {
		dc.stats.TotalProcessed++

		var recordIssues []QualityIssue
		current := record
		for _, rule := range dc.rules {
			out, err := rule.Apply(current)
			if err != nil {
				recordIssues = append(recordIssues, QualityIssue{
					Rule:      rule.Name(),
					Message:   err.Error(),
					Row:       record.Row,
					Timestamp: time.Now(),
				})
				dc.stats.Issues[rule.Name()]++
				continue
			}
			if out != nil {
				current = out
			}
		}

		if len(recordIssues) > 0 {
			dc.stats.Rejected++
			issues = append(issues, recordIssues...)
			continue
		}
		dc.stats.Passed++
		cleaned = append(cleaned, current)
	}
	dc.stats.LastClean = time.Now()

	return cleaned, issues
}

func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// MissingValueRule rejects records with a missing feature value or disposition.
type MissingValueRule struct{}

func NewMissingValueRule() *MissingValueRule {
	return &MissingValueRule{}
}

func (r *MissingValueRule) Name() string {
	return "missing_value"
}

func (r *MissingValueRule) Apply(record *Record) (*Record, error) {
	names := ml.FeatureNames()
	for i := range names {
		if _, ok := record.Observation.Value(i); !ok {
			return nil, fmt.Errorf("missing %s", names[i])
		}
	}
	if record.Disposition == nil {
		return nil, fmt.Errorf("missing %s", ml.LabelColumn)
	}
	return record, nil
}
