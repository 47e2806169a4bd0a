package config

import "os"

// applyEnv lets secrets live outside the config file. Environment values
// win over file values so a committed config can ship without tokens.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SLACK_TOKEN"); v != "" {
		cfg.Slack.Token = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_LOGIN"); v != "" {
		cfg.GitHub.Login = v
	}
	if v := os.Getenv("GITHUB_PASSWORD"); v != "" {
		cfg.GitHub.Password = v
	}
}
