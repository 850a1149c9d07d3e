package config

// TargetKind is what a command or default-agent binding dispatches to.
type TargetKind string

const (
	TargetAgent TargetKind = "agent"
	TargetFleet TargetKind = "fleet"
	TargetFlow  TargetKind = "flow"
)

// CommandBinding binds a slash command to a dispatch target.
type CommandBinding struct {
	Target      TargetKind `yaml:"target"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
}

// TriggerSpec is the Trigger resource kind's spec payload.
type TriggerSpec struct {
	Platform     string                    `yaml:"platform"`
	Credentials  map[string]string         `yaml:"credentials,omitempty"`
	Channels     []string                  `yaml:"channels,omitempty"`
	Users        []string                  `yaml:"users,omitempty"`
	Patterns     []string                  `yaml:"patterns,omitempty"`
	Commands     map[string]CommandBinding `yaml:"commands,omitempty"`
	DefaultAgent string                    `yaml:"default_agent,omitempty"`

	// Schedule is a cron expression (robfig/cron standard 5-field
	// syntax); required when Platform == "schedule", the fifth inbound
	// trigger source spec §1 names alongside chat platforms and
	// webhooks. ScheduleMessage is the text of the synthetic message
	// fed into the handler on each tick (empty falls back to the
	// default agent with empty input).
	Schedule        string `yaml:"schedule,omitempty"`
	ScheduleMessage string `yaml:"schedule_message,omitempty"`
}

// Validate checks the Trigger resource's structural requirements.
func (s *TriggerSpec) Validate() error {
	if s.Platform == "" {
		return newError("", "trigger", "platform is required")
	}
	if s.Platform == "schedule" && s.Schedule == "" {
		return newError("", "trigger", "schedule platform requires a schedule cron expression")
	}
	for cmd, binding := range s.Commands {
		if binding.Name == "" {
			return newError("", "trigger", "command "+cmd+" requires a target name")
		}
		switch binding.Target {
		case TargetAgent, TargetFleet, TargetFlow:
		default:
			return newError("", "trigger", "command "+cmd+" has unknown target: "+string(binding.Target))
		}
	}
	return nil
}
