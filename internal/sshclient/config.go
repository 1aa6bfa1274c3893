package sshclient

import "time"

// Config holds transport settings shared by every session.
type Config struct {
	Port           int
	ConnectTimeout time.Duration
	SessionTimeout time.Duration
	// DialAttempts bounds TCP connect attempts on refused or reset connections.
	DialAttempts int
	// KnownHostsFile enables host key verification when set.
	KnownHostsFile string
	// LegacyAlgorithms offers the SHA1 key exchanges and CBC ciphers older
	// switch firmware still requires.
	LegacyAlgorithms bool
}

// DefaultConfig returns ample but finite timeouts, some devices take
// minutes to answer.
func DefaultConfig() Config {
	return Config{
		Port:           22,
		ConnectTimeout: 150 * time.Second,
		SessionTimeout: 150 * time.Second,
		DialAttempts:   2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.Port <= 0 {
		c.Port = d.Port
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}

	if c.SessionTimeout <= 0 {
		c.SessionTimeout = d.SessionTimeout
	}

	if c.DialAttempts <= 0 {
		c.DialAttempts = 1
	}

	return c
}

var (
	legacyKeyExchanges = []string{
		"curve25519-sha256",
		"curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256",
		"ecdh-sha2-nistp384",
		"ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256",
		"diffie-hellman-group14-sha1",
		"diffie-hellman-group1-sha1",
	}

	legacyCiphers = []string{
		"aes128-gcm@openssh.com",
		"aes256-gcm@openssh.com",
		"chacha20-poly1305@openssh.com",
		"aes128-ctr",
		"aes192-ctr",
		"aes256-ctr",
		"aes128-cbc",
		"3des-cbc",
	}
)
