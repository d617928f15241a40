package config

import (
	"github.com/smykla-skalski/hookgate/pkg/config"
)

// mergeDefinitions merges hook definitions from successive config sources.
// A later definition with the same name replaces the earlier one in place;
// new names are appended. Declaration order is therefore stable: global
// hooks first, then hooks introduced by the project file.
func mergeDefinitions(sources ...[]*config.HookConfig) []*config.HookConfig {
	merged := make([]*config.HookConfig, 0)
	index := make(map[string]int)

	for _, defs := range sources {
		for _, def := range defs {
			if def == nil {
				continue
			}

			// Unnamed definitions are kept so validation can report them.
			if def.Name == "" {
				merged = append(merged, def)

				continue
			}

			if i, seen := index[def.Name]; seen {
				merged[i] = def

				continue
			}

			index[def.Name] = len(merged)
			merged = append(merged, def)
		}
	}

	return merged
}
