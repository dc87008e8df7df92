package config

import (
	"github.com/lucasnoah/codepipeline-notifier/internal/message"
)

// Theme returns the default message theme with the configured icon overrides.
func (c *Config) Theme() message.Theme {
	theme := message.DefaultTheme()
	for state, icon := range c.Message.Icons.Stages {
		if icon != "" {
			theme.StageIcons[message.StageState(state)] = icon
		}
	}
	for status, icon := range c.Message.Icons.Phases {
		if icon != "" {
			theme.PhaseIcons[message.PhaseStatus(status)] = icon
		}
	}
	if c.Message.Icons.Source != "" {
		theme.SourceIcon = c.Message.Icons.Source
	}
	return theme
}

// MessageOptions builds the rendering options for message builders.
func (c *Config) MessageOptions() message.Options {
	return message.Options{
		Theme:           c.Theme(),
		Region:          c.AWS.Region,
		ShowBuildPhases: c.Message.ShowBuildPhases,
	}
}
