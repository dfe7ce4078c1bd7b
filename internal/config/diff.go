package config

// ConfigDiff describes what changed between two configs. Only fields that can be
// safely hot-reloaded are tracked; anything else needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	AssistantsChanged bool
	AssistantChanges  []AssistantDiff

	ActiveAssistantChanged bool
	NewActiveAssistant     string
}

// AssistantDiff describes what changed for a single persona between two
// configs.
type AssistantDiff struct {
	Name          string
	PromptChanged bool
	VoiceChanged  bool
	ModelChanged  bool
	Added         bool
	Removed       bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.ActiveAssistant != new.ActiveAssistant {
		d.ActiveAssistantChanged = true
		d.NewActiveAssistant = new.ActiveAssistant
	}

	oldByName := make(map[string]*AssistantConfig, len(old.Assistants))
	for i := range old.Assistants {
		oldByName[old.Assistants[i].Name] = &old.Assistants[i]
	}
	newByName := make(map[string]*AssistantConfig, len(new.Assistants))
	for i := range new.Assistants {
		newByName[new.Assistants[i].Name] = &new.Assistants[i]
	}

	// Modified and removed personas.
	for name, oldA := range oldByName {
		newA, exists := newByName[name]
		if !exists {
			d.AssistantChanges = append(d.AssistantChanges, AssistantDiff{Name: name, Removed: true})
			d.AssistantsChanged = true
			continue
		}
		ad := diffAssistant(name, oldA, newA)
		if ad.PromptChanged || ad.VoiceChanged || ad.ModelChanged {
			d.AssistantChanges = append(d.AssistantChanges, ad)
			d.AssistantsChanged = true
		}
	}

	// Added personas.
	for name := range newByName {
		if _, exists := oldByName[name]; !exists {
			d.AssistantChanges = append(d.AssistantChanges, AssistantDiff{Name: name, Added: true})
			d.AssistantsChanged = true
		}
	}

	return d
}

// diffAssistant compares two persona configs with the same name.
func diffAssistant(name string, old, new *AssistantConfig) AssistantDiff {
	ad := AssistantDiff{Name: name}

	if old.SystemPrompt != new.SystemPrompt {
		ad.PromptChanged = true
	}
	if old.Voice != new.Voice {
		ad.VoiceChanged = true
	}
	if old.Provider != new.Provider || old.Model != new.Model {
		ad.ModelChanged = true
	}

	return ad
}
