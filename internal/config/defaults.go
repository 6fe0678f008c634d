package config

import "time"

const defaultScriptTimeout = 10 * time.Second

func Defaults() *Config {
	return &Config{
		Settings: Settings{
			Model:         "gpt-4o",
			APIBase:       "https://api.openai.com/v1",
			Temperature:   0.7,
			ScriptTimeout: defaultScriptTimeout,
			SkillsDir:     ".kota/skills",
			AuditDB:       ".kota/audit.db",
		},
		Commands: make(map[string]CommandDef),
	}
}
