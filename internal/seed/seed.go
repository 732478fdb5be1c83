// Package seed applies a YAML file of pre-assigned sender categories, with
// optional hot-reload so users can mark VIPs without going through the UI.
package seed

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/focusguard/internal/policy"
	"github.com/starford/focusguard/internal/store"
)

// File is the on-disk seed format: sender key -> category name.
//
//	senders:
//	  "com.whatsapp:Mom": vip
//	  "com.sms:PROMO": spam
type File struct {
	Senders map[string]string `yaml:"senders"`
}

// Parse reads and validates a seed file.
func Parse(path string) (map[string]policy.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}

	out := make(map[string]policy.Category, len(f.Senders))
	for key, raw := range f.Senders {
		cat, err := policy.ParseCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("seed: sender %q: %w", key, err)
		}
		out[key] = cat
	}
	return out, nil
}

// AppliedFunc is called once per sender whose category was written.
type AppliedFunc func(key string, cat policy.Category)

// Apply writes seed assignments into the directory. Entries already at the
// requested category are skipped so reapplying an unchanged file is a
// no-op.
func Apply(dir store.Directory, assignments map[string]policy.Category, now time.Time, cb AppliedFunc) error {
	for key, cat := range assignments {
		if existing, err := dir.GetSender(key); err == nil && existing.Category == cat {
			continue
		}
		if err := dir.SetCategory(key, cat, now); err != nil {
			return err
		}
		if cb != nil {
			cb(key, cat)
		}
	}
	return nil
}
