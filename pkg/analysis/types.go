package analysis

import (
	"encoding/json"

	"github.com/cognivoice/cognivoice-go/pkg/configutil"
)

// Risk levels derived server-side from the prediction confidence.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

// SpeechFeatures holds the per-dimension speech scores, each a fraction
// in [0,1].
type SpeechFeatures struct {
	PauseFrequency       float64 `json:"pauseFrequency" mapstructure:"pauseFrequency"`
	SpeechRate           float64 `json:"speechRate" mapstructure:"speechRate"`
	VocabularyComplexity float64 `json:"vocabularyComplexity" mapstructure:"vocabularyComplexity"`
	SemanticFluency      float64 `json:"semanticFluency" mapstructure:"semanticFluency"`
}

// VoteCounts is the per-class vote tally of the prediction ensemble.
type VoteCounts struct {
	Control  int `json:"Control" mapstructure:"Control"`
	Dementia int `json:"Dementia" mapstructure:"Dementia"`
}

// ResultPayload is the analysis output produced by the backend. It is
// immutable after receipt.
type ResultPayload struct {
	FileName         string         `json:"fileName" mapstructure:"fileName"`
	FinalPrediction  string         `json:"finalPrediction" mapstructure:"finalPrediction"`
	Confidence       float64        `json:"confidence" mapstructure:"confidence"`
	VoteCounts       VoteCounts     `json:"voteCounts" mapstructure:"voteCounts"`
	VisualizationURL string         `json:"visualizationUrl,omitempty" mapstructure:"visualizationUrl"`
	SpeechFeatures   SpeechFeatures `json:"speechfeatures" mapstructure:"speechfeatures"`
	RiskLevel        string         `json:"riskLevel" mapstructure:"riskLevel"`
}

// UnmarshalJSON decodes through a weakly typed map. The backend encodes
// confidence as a number on the progress stream but as a string in the
// history listing; both normalize to float64 here.
func (p *ResultPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return decodeResult(raw, p)
}

func decodeResult(raw map[string]any, out *ResultPayload) error {
	return configutil.Decode(raw, out)
}

// Record is the client-side result of one completed submission.
type Record struct {
	ID              string        `json:"id"`
	RiskLevel       string        `json:"riskLevel"`
	Recommendations []string      `json:"recommendations"`
	Timestamp       string        `json:"timestamp"`
	BackendData     ResultPayload `json:"backendData"`
}

// DefaultRecommendations returns the advisory list attached to every
// completed analysis.
func DefaultRecommendations() []string {
	return []string{
		"Consider consulting with a healthcare professional for further evaluation.",
		"Regular cognitive exercises may be beneficial for maintaining brain health.",
		"Maintain social engagement and mental stimulation through hobbies and activities.",
	}
}

var stepLabels = []string{
	"Preprocessing audio...",
	"Feature extraction...",
	"Speech pattern analysis...",
	"Generating insights...",
	"Complete",
}

// StepLabel returns the human-readable label of a pipeline stage.
func StepLabel(step int) string {
	if step < 0 || step >= len(stepLabels) {
		return "Processing..."
	}
	return stepLabels[step]
}
