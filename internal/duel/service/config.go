package service

import "time"

const (
	defaultCountdown       = 5 * time.Second
	defaultMatchTimeUnit   = time.Second
	defaultDisconnectGrace = 60 * time.Second
	defaultIdleTimeout     = 10 * time.Minute
	defaultProblemRetries  = 3
	defaultRetryBaseDelay  = 200 * time.Millisecond
	defaultRetryMaxDelay   = 2 * time.Second
	defaultSelectTimeout   = 5 * time.Second
	defaultIDAttempts      = 8
)

// Config holds duel timing and retry settings.
type Config struct {
	// Countdown is the time between both players readying up and the match start.
	Countdown time.Duration `yaml:"countdown"`
	// MatchTimeUnit scales the problem's timeLimitMs into the match duration.
	MatchTimeUnit   time.Duration `yaml:"matchTimeUnit"`
	DisconnectGrace time.Duration `yaml:"disconnectGrace"`
	// IdleTimeout evicts a waiting room that never got a second player.
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	ProblemRetries int           `yaml:"problemRetries"`
	// RetryBaseDelay of zero retries problem selection without waiting.
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay  time.Duration `yaml:"retryMaxDelay"`
	SelectTimeout  time.Duration `yaml:"selectTimeout"`
	IDAttempts     int           `yaml:"idAttempts"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Countdown:       defaultCountdown,
		MatchTimeUnit:   defaultMatchTimeUnit,
		DisconnectGrace: defaultDisconnectGrace,
		IdleTimeout:     defaultIdleTimeout,
		ProblemRetries:  defaultProblemRetries,
		RetryBaseDelay:  defaultRetryBaseDelay,
		RetryMaxDelay:   defaultRetryMaxDelay,
		SelectTimeout:   defaultSelectTimeout,
		IDAttempts:      defaultIDAttempts,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Countdown <= 0 {
		c.Countdown = d.Countdown
	}
	if c.MatchTimeUnit <= 0 {
		c.MatchTimeUnit = d.MatchTimeUnit
	}
	if c.DisconnectGrace <= 0 {
		c.DisconnectGrace = d.DisconnectGrace
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.ProblemRetries < 0 {
		c.ProblemRetries = 0
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.SelectTimeout <= 0 {
		c.SelectTimeout = d.SelectTimeout
	}
	if c.IDAttempts <= 0 {
		c.IDAttempts = d.IDAttempts
	}
}
