package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ConnString returns the connection URL for the configured database.
// A configured DatabaseURL wins; otherwise the URL is assembled from the
// discrete host/port/user/password/name parts and the effective SSL mode.
func (c *Config) ConnString() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}

	if c.DBHost == "" {
		return "", ErrNoConnection
	}

	port := c.DBPort
	if port == 0 {
		port = DefaultDBPort
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(port)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.EffectiveSSLMode()}}.Encode(),
	}

	switch {
	case c.DBUser != "" && c.DBPassword != "":
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	case c.DBUser != "":
		u.User = url.User(c.DBUser)
	}

	return u.String(), nil
}

// EffectiveSSLMode returns the explicit SSL mode, or one derived from the
// environment: production-like environments require TLS, others prefer it.
func (c *Config) EffectiveSSLMode() string {
	if c.SSLMode != "" {
		return c.SSLMode
	}

	switch strings.ToLower(c.Environment) {
	case "production", "prod", "staging":
		return "require"
	default:
		return "prefer"
	}
}

// RedactURL replaces the password in a PostgreSQL connection URL with "***".
// If the URL cannot be parsed or has no password, it is returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}

	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}

	// Splice on the raw string so escaping elsewhere in the URL is untouched.
	start := strings.Index(raw, "://")
	if start < 0 {
		return raw
	}

	start += len("://")

	at := strings.Index(raw[start:], "@")
	if at < 0 {
		return raw
	}

	userinfo := raw[start : start+at]

	user, _, found := strings.Cut(userinfo, ":")
	if !found {
		return raw
	}

	return raw[:start] + user + ":***" + raw[start+at:]
}
