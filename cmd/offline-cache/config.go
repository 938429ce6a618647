package main

import (
	"fmt"
	"os"
	"regexp"
	"time"

	offlinecache "github.com/always-cache/offline-cache"

	"gopkg.in/yaml.v3"
)

// ConfigFile is the YAML configuration for the proxy: an ordered list of
// route rules plus the precache manifest. Rule order matters, the first
// matching rule wins.
type ConfigFile struct {
	Rules    []ConfigRule          `yaml:"rules"`
	Precache offlinecache.Manifest `yaml:"precache"`
	Fallback string                `yaml:"fallback"`
}

type ConfigRule struct {
	Pattern               string `yaml:"pattern"`
	Method                string `yaml:"method"`
	Strategy              string `yaml:"strategy"`
	Cache                 string `yaml:"cache"`
	MaxAgeSeconds         int    `yaml:"maxAgeSeconds"`
	MaxEntries            int    `yaml:"maxEntries"`
	NetworkTimeoutSeconds int    `yaml:"networkTimeoutSeconds"`
}

func getConfig(filename string) (ConfigFile, error) {
	var config ConfigFile
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}

func (c ConfigFile) rules() (offlinecache.Rules, error) {
	rules := make(offlinecache.Rules, 0, len(c.Rules))
	for _, cr := range c.Rules {
		pattern, err := regexp.Compile(cr.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule pattern %q: %w", cr.Pattern, err)
		}
		strategy, err := strategyName(cr.Strategy)
		if err != nil {
			return nil, err
		}
		rules = append(rules, offlinecache.Rule{
			Method:   cr.Method,
			Pattern:  pattern,
			Strategy: strategy,
			RuleConfig: offlinecache.RuleConfig{
				CacheName:      cr.Cache,
				MaxAge:         time.Duration(cr.MaxAgeSeconds) * time.Second,
				MaxEntries:     cr.MaxEntries,
				NetworkTimeout: time.Duration(cr.NetworkTimeoutSeconds) * time.Second,
			},
		})
	}
	return rules, nil
}

func strategyName(s string) (offlinecache.StrategyName, error) {
	switch offlinecache.StrategyName(s) {
	case offlinecache.NetworkOnly, offlinecache.CacheOnly, offlinecache.CacheFirst,
		offlinecache.NetworkFirst, offlinecache.StaleWhileRevalidate:
		return offlinecache.StrategyName(s), nil
	case "":
		return offlinecache.NetworkFirst, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}
