package ua

import "time"

// Config enumerates the options from §6.5, each with the default the
// constructor falls back to when the field is left at its zero value.
type Config struct {
	SIPHost string
	SIPPort int // default 5060

	RTPPort      int // base RTP port, default 10000
	RTPPortRange int // default 100

	JitterBufferSize     int           // default 50
	JitterBufferDelay    time.Duration // default 100ms
	MaxJitterBufferDelay time.Duration // default 500ms

	RingDuration time.Duration // auto-answer delay, default 2s

	RegistrationExpires int // seconds, default 3600
}

// WithDefaults returns a copy of cfg with every zero-valued field replaced
// by its §6.5 default.
func (cfg Config) WithDefaults() Config {
	if cfg.SIPPort == 0 {
		cfg.SIPPort = 5060
	}
	if cfg.RTPPort == 0 {
		cfg.RTPPort = 10000
	}
	if cfg.RTPPortRange == 0 {
		cfg.RTPPortRange = 100
	}
	if cfg.JitterBufferSize == 0 {
		cfg.JitterBufferSize = 50
	}
	if cfg.JitterBufferDelay == 0 {
		cfg.JitterBufferDelay = 100 * time.Millisecond
	}
	if cfg.MaxJitterBufferDelay == 0 {
		cfg.MaxJitterBufferDelay = 500 * time.Millisecond
	}
	if cfg.RingDuration == 0 {
		cfg.RingDuration = 2 * time.Second
	}
	if cfg.RegistrationExpires == 0 {
		cfg.RegistrationExpires = 3600
	}
	return cfg
}
