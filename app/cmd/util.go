package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/lexcodex/quill/agent"
	"github.com/lexcodex/quill/memory"
)

// ensureWorkspace resolves the workspace CLI flag, defaulting to cwd.
func ensureWorkspace() string {
	if workspace == "" {
		wd, _ := os.Getwd()
		workspace = wd
	}
	return workspace
}

// configKeys maps every settable dotted key to its typed accessors. Keys the
// config file does not know are rejected up front instead of being written
// as dead entries.
var configKeys = map[string]struct {
	get func(*agent.Config) string
	set func(*agent.Config, string) error
}{
	"endpoint": {
		get: func(c *agent.Config) string { return c.Endpoint },
		set: func(c *agent.Config, raw string) error {
			if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
				return fmt.Errorf("endpoint must be an http(s) URL, got %q", raw)
			}
			c.Endpoint = raw
			return nil
		},
	},
	"model.name": {
		get: func(c *agent.Config) string { return c.Model.Name },
		set: func(c *agent.Config, raw string) error {
			if raw == "" {
				return fmt.Errorf("model name cannot be empty")
			}
			c.Model.Name = raw
			return nil
		},
	},
	"model.temperature": {
		get: func(c *agent.Config) string { return formatFloat(c.Model.Temperature) },
		set: func(c *agent.Config, raw string) error {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 || v > 2 {
				return fmt.Errorf("temperature must be a number in [0, 2], got %q", raw)
			}
			c.Model.Temperature = v
			return nil
		},
	},
	"model.max_tokens": {
		get: func(c *agent.Config) string { return strconv.Itoa(c.Model.MaxTokens) },
		set: func(c *agent.Config, raw string) error {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				return fmt.Errorf("max_tokens must be a non-negative integer, got %q", raw)
			}
			c.Model.MaxTokens = v
			return nil
		},
	},
	"context.budget_tokens": {
		get: func(c *agent.Config) string { return strconv.Itoa(c.Context.BudgetTokens) },
		set: func(c *agent.Config, raw string) error {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				return fmt.Errorf("budget_tokens must be a positive integer, got %q", raw)
			}
			c.Context.BudgetTokens = v
			return nil
		},
	},
	"context.policy": {
		get: func(c *agent.Config) string { return c.Context.Policy },
		set: func(c *agent.Config, raw string) error {
			switch memory.Policy(raw) {
			case memory.PolicyTruncate, memory.PolicySummarize:
				c.Context.Policy = raw
				return nil
			}
			return fmt.Errorf("policy must be %q or %q, got %q", memory.PolicyTruncate, memory.PolicySummarize, raw)
		},
	},
	"approval.timeout_seconds": {
		get: func(c *agent.Config) string { return strconv.Itoa(c.Approval.TimeoutSeconds) },
		set: func(c *agent.Config, raw string) error {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				return fmt.Errorf("timeout_seconds must be a positive integer, got %q", raw)
			}
			c.Approval.TimeoutSeconds = v
			return nil
		},
	},
	"logging.llm_debug": {
		get: func(c *agent.Config) string { return strconv.FormatBool(c.Logging.LLM) },
		set: func(c *agent.Config, raw string) error {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("llm_debug must be true or false, got %q", raw)
			}
			c.Logging.LLM = v
			return nil
		},
	},
}

// configValue reads one dotted key from the typed config.
func configValue(cfg *agent.Config, key string) (string, error) {
	entry, ok := configKeys[key]
	if !ok {
		return "", unknownKeyError(key)
	}
	return entry.get(cfg), nil
}

// applyConfigValue validates and sets one dotted key on the typed config.
func applyConfigValue(cfg *agent.Config, key, raw string) error {
	entry, ok := configKeys[key]
	if !ok {
		return unknownKeyError(key)
	}
	return entry.set(cfg, raw)
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key %q (known keys: %s)", key, strings.Join(sortedConfigKeys(), ", "))
}

func sortedConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for key := range configKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
