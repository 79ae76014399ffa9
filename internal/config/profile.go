package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is the optional YAML interview profile. Zero values leave the
// environment configuration untouched.
type Profile struct {
	Interview ProfileInterview `yaml:"interview"`
	Security  ProfileSecurity  `yaml:"security"`
}

// ProfileInterview overrides interview defaults.
type ProfileInterview struct {
	Type              string `yaml:"type"`
	Difficulty        string `yaml:"difficulty"`
	QuestionCount     int    `yaml:"question_count"`
	AutoSubmitSeconds int    `yaml:"auto_submit_seconds"`
}

// ProfileSecurity overrides the security policy.
type ProfileSecurity struct {
	Level     string   `yaml:"level"`
	Flags     []string `yaml:"flags"`
	Threshold int      `yaml:"threshold"`
}

var (
	validTypes        = map[string]bool{"technical": true, "behavioral": true, "mixed": true, "hr": true}
	validDifficulties = map[string]bool{"easy": true, "medium": true, "hard": true}
	validLevels       = map[string]bool{"off": true, "standard": true, "strict": true}
)

// LoadProfile reads and validates a YAML interview profile.
func LoadProfile(filename string) (*Profile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", filename, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	if err := validateProfile(&p); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	return &p, nil
}

func validateProfile(p *Profile) error {
	if p.Interview.Type != "" && !validTypes[p.Interview.Type] {
		return fmt.Errorf("unknown interview type %q", p.Interview.Type)
	}
	if p.Interview.Difficulty != "" && !validDifficulties[p.Interview.Difficulty] {
		return fmt.Errorf("unknown difficulty %q", p.Interview.Difficulty)
	}
	if p.Interview.QuestionCount < 0 {
		return fmt.Errorf("question_count cannot be negative")
	}
	if p.Interview.AutoSubmitSeconds < 0 {
		return fmt.Errorf("auto_submit_seconds cannot be negative")
	}
	if p.Security.Level != "" && !validLevels[p.Security.Level] {
		return fmt.Errorf("unknown security level %q", p.Security.Level)
	}
	if p.Security.Threshold < 0 {
		return fmt.Errorf("threshold cannot be negative")
	}
	return nil
}

// Apply overlays the profile on top of the configuration.
func (p *Profile) Apply(cfg *Configuration) {
	if p.Interview.Type != "" {
		cfg.Interview.Type = p.Interview.Type
	}
	if p.Interview.Difficulty != "" {
		cfg.Interview.Difficulty = p.Interview.Difficulty
	}
	if p.Interview.QuestionCount > 0 {
		cfg.Interview.QuestionCount = p.Interview.QuestionCount
	}
	if p.Interview.AutoSubmitSeconds > 0 {
		cfg.Interview.AutoSubmitSeconds = p.Interview.AutoSubmitSeconds
	}
	if p.Security.Level != "" {
		cfg.Security.Level = p.Security.Level
	}
	if len(p.Security.Flags) > 0 {
		cfg.Security.Flags = p.Security.Flags
	}
	if p.Security.Threshold > 0 {
		cfg.Security.Threshold = p.Security.Threshold
	}
}
