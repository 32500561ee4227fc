package entities

import "fmt"

// Scenario identifies a training scenario the assistant roleplays.
type Scenario string

const (
	ScenarioVMwareMigration    Scenario = "vmware-migration"
	ScenarioSituationalFluency Scenario = "situational-fluency"
	ScenarioSMBProspecting     Scenario = "smb-prospecting"
)

// ScenarioProfile describes how the assistant behaves for one scenario.
type ScenarioProfile struct {
	ID           Scenario `json:"id"`
	Title        string   `json:"title"`
	SystemPrompt string   `json:"-"`
	Fallback     string   `json:"-"`
}

var scenarioProfiles = map[Scenario]ScenarioProfile{
	ScenarioVMwareMigration: {
		ID:           ScenarioVMwareMigration,
		Title:        "VMware Migration",
		SystemPrompt: "You are an IT manager evaluating AWS for VMware migration. You have concerns about cost and complexity. Ask specific technical questions and express realistic concerns about the migration process. Keep responses conversational, 2-3 sentences.",
		Fallback:     "That's interesting. Can you tell me more about how this would work with our current VMware environment?",
	},
	ScenarioSituationalFluency: {
		ID:           ScenarioSituationalFluency,
		Title:        "Situational Fluency",
		SystemPrompt: "You are a technical decision maker considering cloud adoption. You have concerns about security, compliance, and vendor lock-in. Challenge the salesperson with thoughtful questions. Keep responses conversational, 2-3 sentences.",
		Fallback:     "I appreciate that information. What would you say are the main benefits compared to our current setup?",
	},
	ScenarioSMBProspecting: {
		ID:           ScenarioSMBProspecting,
		Title:        "SMB Prospecting",
		SystemPrompt: "You are a small business owner interested in cloud solutions but cost-conscious. You need simple explanations and reassurance about costs and complexity. Keep responses practical, 2-3 sentences.",
		Fallback:     "That sounds helpful. Can you explain how this would work for a business our size?",
	},
}

// LookupScenario resolves a scenario id to its profile.
func LookupScenario(id string) (ScenarioProfile, error) {
	profile, ok := scenarioProfiles[Scenario(id)]
	if !ok {
		return ScenarioProfile{}, fmt.Errorf("unknown scenario: %q", id)
	}
	return profile, nil
}

// Scenarios returns all selectable scenario profiles.
func Scenarios() []ScenarioProfile {
	return []ScenarioProfile{
		scenarioProfiles[ScenarioVMwareMigration],
		scenarioProfiles[ScenarioSituationalFluency],
		scenarioProfiles[ScenarioSMBProspecting],
	}
}

// Voice identifies a synthesized voice for the assistant.
type Voice string

const (
	VoiceJoanna  Voice = "Joanna"
	VoiceMatthew Voice = "Matthew"
	VoiceAmy     Voice = "Amy"
)

// VoiceProfile describes one selectable voice.
type VoiceProfile struct {
	ID          Voice  `json:"id"`
	Description string `json:"description"`
}

var voiceProfiles = map[Voice]VoiceProfile{
	VoiceJoanna:  {ID: VoiceJoanna, Description: "US Female"},
	VoiceMatthew: {ID: VoiceMatthew, Description: "US Male"},
	VoiceAmy:     {ID: VoiceAmy, Description: "UK Female"},
}

// LookupVoice resolves a voice id to its profile.
func LookupVoice(id string) (VoiceProfile, error) {
	profile, ok := voiceProfiles[Voice(id)]
	if !ok {
		return VoiceProfile{}, fmt.Errorf("unknown voice: %q", id)
	}
	return profile, nil
}

// Voices returns all selectable voice profiles.
func Voices() []VoiceProfile {
	return []VoiceProfile{
		voiceProfiles[VoiceJoanna],
		voiceProfiles[VoiceMatthew],
		voiceProfiles[VoiceAmy],
	}
}
