package config

import "time"

// WebhookMaxAge is how old a signed webhook timestamp may be before the
// payload is rejected.
func (c *Config) WebhookMaxAge() time.Duration {
	if c.WebhookMaxAgeSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.WebhookMaxAgeSeconds) * time.Second
}

// SendTimeout bounds one call to the mail provider.
func (c *Config) SendTimeout() time.Duration {
	return seconds(c.SendTimeoutSeconds, 15)
}

// DBTimeout bounds one call to the database.
func (c *Config) DBTimeout() time.Duration {
	return seconds(c.DBTimeoutSeconds, 5)
}

func (c *Config) PollInterval() time.Duration {
	return seconds(c.PollSeconds, 20)
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
