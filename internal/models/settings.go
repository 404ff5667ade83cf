package models

// Settings are the user-tunable generation and orchestration knobs.
type Settings struct {
	Temperature         float64 `json:"temperature"`
	ContextLength       int     `json:"contextLength"`
	MaxTokens           int     `json:"maxTokens"`
	GlobalPolicy        string  `json:"globalPolicy"`
	WaitTimePerWord     int     `json:"waitTimePerWord"` // milliseconds
	CharacterMemorySize int     `json:"characterMemorySize"`
	APIContextSize      int     `json:"apiContextSize"`
	ShowTypingIndicator bool    `json:"showTypingIndicator"`
	APIBaseURL          string  `json:"apiBaseUrl"`
}

// DefaultSettings returns the settings used on first run.
func DefaultSettings() Settings {
	return Settings{
		Temperature:         0.7,
		ContextLength:       32768,
		MaxTokens:           2000,
		GlobalPolicy:        "",
		WaitTimePerWord:     150,
		CharacterMemorySize: 20,
		APIContextSize:      10,
		ShowTypingIndicator: true,
	}
}

// UpdateSettingsRequest patches settings; nil fields are unchanged.
type UpdateSettingsRequest struct {
	Temperature         *float64 `json:"temperature"`
	ContextLength       *int     `json:"contextLength"`
	MaxTokens           *int     `json:"maxTokens"`
	GlobalPolicy        *string  `json:"globalPolicy"`
	WaitTimePerWord     *int     `json:"waitTimePerWord"`
	CharacterMemorySize *int     `json:"characterMemorySize"`
	APIContextSize      *int     `json:"apiContextSize"`
	ShowTypingIndicator *bool    `json:"showTypingIndicator"`
	APIBaseURL          *string  `json:"apiBaseUrl"`
}

// Apply returns s with the non-nil fields of r applied.
func (r UpdateSettingsRequest) Apply(s Settings) Settings {
	if r.Temperature != nil {
		s.Temperature = *r.Temperature
	}
	if r.ContextLength != nil {
		s.ContextLength = *r.ContextLength
	}
	if r.MaxTokens != nil {
		s.MaxTokens = *r.MaxTokens
	}
	if r.GlobalPolicy != nil {
		s.GlobalPolicy = *r.GlobalPolicy
	}
	if r.WaitTimePerWord != nil {
		s.WaitTimePerWord = *r.WaitTimePerWord
	}
	if r.CharacterMemorySize != nil {
		s.CharacterMemorySize = *r.CharacterMemorySize
	}
	if r.APIContextSize != nil {
		s.APIContextSize = *r.APIContextSize
	}
	if r.ShowTypingIndicator != nil {
		s.ShowTypingIndicator = *r.ShowTypingIndicator
	}
	if r.APIBaseURL != nil {
		s.APIBaseURL = *r.APIBaseURL
	}
	return s
}
