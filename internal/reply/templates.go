package reply

const (
	KeyLikelyTrueHigh      = "likely_true_high"
	KeyLikelyTrueModerate  = "likely_true_moderate"
	KeyLikelyFalseHigh     = "likely_false_high"
	KeyLikelyFalseModerate = "likely_false_moderate"
	KeyUncertain           = "uncertain"
	KeyAnalysisFailed      = "analysis_failed"
	KeyWelcome             = "welcome"
	KeyHelp                = "help"
	KeyInfo                = "info"
)

// FallbackText is sent when every template for a verdict renders empty.
const FallbackText = "Sorry, we could not analyze this message. Please try again later."

var defaultTemplates = map[string]string{
	KeyLikelyTrueHigh: `✅ This content looks reliable ({{.Percent}}% confidence).
No obvious sign of misinformation or manipulation was found.

Always check the original source and date before sharing.`,

	KeyLikelyTrueModerate: `🟢 This content is probably reliable ({{.Percent}}% confidence).
The signal is moderate, so stay cautious and cross-check with trusted sources.`,

	KeyLikelyFalseHigh: `🚨 Warning: this content shows strong signs of being false or manipulated ({{.Percent}}% confidence).
Check the cited sources and look for confirmation from fact-checking sites before sharing.`,

	KeyLikelyFalseModerate: `⚠️ This content may be false or manipulated ({{.Percent}}% confidence).
Be careful with it and verify it with reliable sources.`,

	KeyUncertain: `🤔 We could not reach a clear conclusion about this content.
{{if .Explanation}}Details: {{.Explanation}}
{{end}}Verify it with trusted sources before sharing.`,

	KeyAnalysisFailed: FallbackText,

	KeyWelcome: `👋 Welcome to Veritas!
Send me a message, a photo, a video or a voice note and I will tell you whether it looks reliable or manipulated.
Type "help" to see how it works.`,

	KeyHelp: `ℹ️ How to use Veritas:
• Forward a text message to check it for misinformation.
• Send an image, video or audio file to check it for synthetic manipulation.
• Type "info" to learn more about this service.`,

	KeyInfo: `🔍 Veritas analyzes forwarded content with automated classifiers.
Results are indicative only and never a substitute for checking primary sources.`,
}
