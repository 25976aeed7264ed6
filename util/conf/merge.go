package conf

// MergeDefaults flattens defaults into one map and prefixes every key
// with ns. An empty ns keeps the keys unchanged. Later maps win on
// conflicting keys.
func MergeDefaults(ns string, defaults ...DefaultConfig) DefaultConfig {
	size := 0
	for _, d := range defaults {
		size += len(d)
	}

	merged := make(DefaultConfig, size)
	for _, d := range defaults {
		for key, value := range d {
			if ns != "" {
				key = ns + "." + key
			}
			merged[key] = value
		}
	}

	return merged
}
