package paths

const DefaultInstance = "main"

// ResolveConfig determines the config file path using precedence:
// 1. flagOverride (--config flag)
// 2. $WPPRELAY_CONFIG
// 3. ~/.wpprelay/config.toml
func ResolveConfig(flagOverride string, lookup func(string) (string, bool)) string {
	if flagOverride != "" {
		return flagOverride
	}
	if v, ok := lookup("WPPRELAY_CONFIG"); ok && v != "" {
		return v
	}
	return ConfigPath()
}

// ResolveInstance determines the instance name using precedence:
// 1. flagOverride (--instance flag)
// 2. $WPPRELAY_INSTANCE
// 3. "main"
func ResolveInstance(flagOverride string, lookup func(string) (string, bool)) string {
	if flagOverride != "" {
		return flagOverride
	}
	if v, ok := lookup("WPPRELAY_INSTANCE"); ok && v != "" {
		return v
	}
	return DefaultInstance
}
