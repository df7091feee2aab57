package config

// Default returns the out-of-the-box configuration matching every default
// called out across SPEC_FULL.md's component sections.
func Default() Config {
	return Config{
		RetentionDays:          7,
		CaptureIntervalSeconds: 5,
		SummaryIntervalMinutes: 15,
		CaptureSettings: CaptureSettings{
			Resolution:           "1080p",
			ImageQuality:         85,
			DetectBlackScreen:    true,
			BlackScreenThreshold: 5,
		},
		VideoConfig: VideoConfig{
			AutoGenerate:    true,
			SpeedMultiplier: 8,
			Quality:         23,
			AddTimestamp:    false,
		},
		LLMProvider: "",
		LLMConfig:   map[string]any{},
		LoggerSettings: LoggerSettings{
			Level:      "info",
			BufferSize: 1000,
			Sink:       "stdout",
		},
		DatabaseConfig: DatabaseConfig{
			Backend: "sqlite",
			Path:    "data.db",
		},
		SegmentPolicy: SegmentPolicy{
			IdleGapMinutes:          5,
			MaxSessionWindowMinutes: 15,
			MinSessionLengthMinutes: 15,
		},
		RetentionIntervalMinutes: 60,
	}
}
