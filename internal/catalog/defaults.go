package catalog

// Defaults returns the stock function table. Costs here are only defaults;
// deployments override them through configuration.
func Defaults() []FunctionConfig {
	return []FunctionConfig{
		{
			Name:        Chat,
			DisplayName: "Chat",
			Description: "Converse with the assistant for advice and help.",
			PointsCost:  10,
			Enabled:     true,
			Category:    "communication",
		},
		{
			Name:        TextGeneration,
			DisplayName: "Text Generation",
			Description: "Generate creative text from a short brief.",
			PointsCost:  20,
			Enabled:     true,
			Category:    "generation",
		},
		{
			Name:        CodeGeneration,
			DisplayName: "Code Generation",
			Description: "Describe what you need and receive working code.",
			PointsCost:  40,
			Enabled:     true,
			Category:    "generation",
		},
		{
			Name:        DocumentSummary,
			DisplayName: "Document Summary",
			Description: "Summarize a document and extract its key points.",
			PointsCost:  35,
			Enabled:     true,
			Category:    "analysis",
		},
		{
			Name:        MovieClip,
			DisplayName: "Movie Clip",
			Description: "Plan an edit of your footage into a short highlight clip.",
			PointsCost:  50,
			Enabled:     true,
			Category:    "media",
		},
		{
			Name:        ImageRecognition,
			DisplayName: "Image Recognition",
			Description: "Describe the contents of an uploaded image.",
			PointsCost:  30,
			Enabled:     false,
			Category:    "analysis",
		},
	}
}
