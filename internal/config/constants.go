package config

const (
	DefaultGlamourStyle = "dark"

	// Generation endpoint
	DefaultEndpoint      = "https://generativelanguage.googleapis.com"
	DefaultPrimaryModel  = "gemini-2.5-flash"
	DefaultFallbackModel = "gemini-pro"

	// Attachments
	MaxAttachmentBytes = 10 * 1024 * 1024

	// Greeting shown as the first bot turn.
	Greeting = "Hey 👋 I'm Gemini Flash. Ask me anything!"

	// Input
	MaxPathChars = 1024
)
