package models

import "fmt"

// Macronutrients is the macro breakdown of an estimated meal, in grams.
type Macronutrients struct {
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatsG    float64 `json:"fats_g"`
}

// FoodItem is one recognized item within an estimate.
type FoodItem struct {
	Label   string  `json:"label"`
	Portion string  `json:"portion"`
	Kcal    float64 `json:"kcal"`
}

// EstimateResult is the structured output of the vision model.
type EstimateResult struct {
	CaloriesMean   float64        `json:"calories_mean"`
	CaloriesMin    float64        `json:"calories_min"`
	CaloriesMax    float64        `json:"calories_max"`
	Macronutrients Macronutrients `json:"macronutrients"`
	Items          []FoodItem     `json:"items"`
	Confidence     float64        `json:"confidence"`
	ModelLatencyMs int64          `json:"model_latency_ms"`

	// LowConfidence marks parse successes with confidence < 0.2.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// Validate enforces the estimate invariants: ordered calorie bounds and a
// confidence in [0,1].
func (r *EstimateResult) Validate() error {
	if r.CaloriesMin > r.CaloriesMean || r.CaloriesMean > r.CaloriesMax {
		return fmt.Errorf("calorie bounds out of order: min=%.1f mean=%.1f max=%.1f",
			r.CaloriesMin, r.CaloriesMean, r.CaloriesMax)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %.3f outside [0,1]", r.Confidence)
	}
	return nil
}
