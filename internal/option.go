package internal

import "github.com/starford/focusguard/internal/alert"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	notifier alert.Notifier
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithNotifier overrides the alert sink (defaults to the structured log).
func WithNotifier(n alert.Notifier) Option {
	return func(a *application) {
		a.notifier = n
	}
}
