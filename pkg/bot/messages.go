package bot

import (
	"fmt"
	"strings"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
)

// Canned texts shown to users. Placeholders go out during the acknowledgement
// stage; the worker later edits them with the result or a failure notice.
const (
	PlaceholderText = "Analyzing your meal, hang tight..."

	// PrivacyNoticeText is appended to the first inline acknowledgement per
	// chat/user pair within the notice TTL.
	PrivacyNoticeText = "Privacy notice: photos you share here are sent to an AI model for calorie analysis. " +
		"View the inline usage guide for details and how to opt out."

	// TooManyPhotosText is sent when an album carries more than five photos.
	TooManyPhotosText = "Maximum 5 photos per message for better calorie estimation. " +
		"Analyzing the first 5."

	InlineGuideTitle = "Analyze a meal photo"
)

// failureTexts maps each failure reason to its user-facing notice.
var failureTexts = map[config.FailureReason]string{
	config.FailureProcessingError: "Something went wrong while analyzing your meal. Please try again.",
	config.FailureModelError:      "The analysis service returned an unusable answer. Please try again.",
	config.FailureTimeout:         "The analysis took too long and was cancelled. Please try again.",
	config.FailureQuotaExhausted:  "The analysis service is over capacity right now. Please try again in a few minutes.",
	config.FailurePermissionDenied: "I could not post the result in that chat. " +
		"Make sure I have permission to send messages there.",
	config.FailureInvalidInput: "I could not analyze that message. Send 1 to 5 photos of a single meal.",
}

// FailureText returns the user-facing notice for a failure reason.
func FailureText(reason config.FailureReason) string {
	if text, ok := failureTexts[reason]; ok {
		return text
	}
	return failureTexts[config.FailureProcessingError]
}

// FormatResult renders an estimate as a chat message.
func FormatResult(result *models.EstimateResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Estimated calories: %.0f kcal (range %.0f-%.0f)\n",
		result.CaloriesMean, result.CaloriesMin, result.CaloriesMax)
	fmt.Fprintf(&b, "Protein %.0fg / Carbs %.0fg / Fats %.0fg\n",
		result.Macronutrients.ProteinG, result.Macronutrients.CarbsG, result.Macronutrients.FatsG)

	if len(result.Items) > 0 {
		b.WriteString("\nWhat I see:\n")
		for _, item := range result.Items {
			if item.Portion != "" {
				fmt.Fprintf(&b, "- %s (%s): %.0f kcal\n", item.Label, item.Portion, item.Kcal)
			} else {
				fmt.Fprintf(&b, "- %s: %.0f kcal\n", item.Label, item.Kcal)
			}
		}
	}

	fmt.Fprintf(&b, "\nConfidence: %.0f%%", result.Confidence*100)
	if result.LowConfidence {
		b.WriteString("\nLow confidence: treat this estimate as a rough guess.")
	}
	return b.String()
}
