package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded without restarting an in-flight pipeline are
// tracked: provider identity, audio framing, and segment-ID policy all
// require a fresh session, so they are deliberately excluded.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     string

	ParagraphChanged bool
	NewParagraph     ParagraphConfig

	CoalesceChanged bool
	NewCoalesce     CoalesceConfig

	SummaryChanged bool
	NewSummary     SummaryConfig

	DisplayChanged bool
	NewDisplay     DisplayConfig
}

// Diff compares old and new configs and returns what changed. Only tracks
// changes that are safe to apply to a running pipeline without restart.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Paragraph != new.Paragraph {
		d.ParagraphChanged = true
		d.NewParagraph = new.Paragraph
	}
	if old.Coalesce != new.Coalesce {
		d.CoalesceChanged = true
		d.NewCoalesce = new.Coalesce
	}
	if old.Summary != new.Summary {
		d.SummaryChanged = true
		d.NewSummary = new.Summary
	}
	if old.Display != new.Display {
		d.DisplayChanged = true
		d.NewDisplay = new.Display
	}

	return d
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ParagraphChanged || d.CoalesceChanged || d.SummaryChanged || d.DisplayChanged
}
