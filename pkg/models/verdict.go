package models

type VerdictCategory string

const (
	CategoryLikelyTrue     VerdictCategory = "LIKELY_TRUE"
	CategoryLikelyFalse    VerdictCategory = "LIKELY_FALSE"
	CategoryUncertain      VerdictCategory = "UNCERTAIN"
	CategoryAnalysisFailed VerdictCategory = "ANALYSIS_FAILED"
)

// Verdict is the outcome of analyzing one piece of content.
// Confidence is meaningless when Category is CategoryAnalysisFailed.
type Verdict struct {
	Category    VerdictCategory `json:"category"`
	Confidence  float64         `json:"confidence"`
	Explanation string          `json:"explanation"`
}

func FailedVerdict(explanation string) Verdict {
	return Verdict{Category: CategoryAnalysisFailed, Explanation: explanation}
}

func (v Verdict) Failed() bool {
	return v.Category == CategoryAnalysisFailed
}

// Clamp forces Confidence into [0,1].
func (v Verdict) Clamp() Verdict {
	switch {
	case v.Confidence < 0:
		v.Confidence = 0
	case v.Confidence > 1:
		v.Confidence = 1
	}
	return v
}
