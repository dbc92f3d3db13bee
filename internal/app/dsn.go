package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// dsnSummary is the password-free view of a database DSN used in startup logs.
type dsnSummary struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string
	PasswordSet bool
}

func (s dsnSummary) String() string {
	if s.Type == "sqlite" {
		return "sqlite:" + s.Path
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s (sslmode=%s password_set=%t)", s.User, s.Host, s.Port, s.Name, s.SSLMode, s.PasswordSet)
}

func summarizeDSN(dsn string) (dsnSummary, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return dsnSummary{}, fmt.Errorf("empty dsn")
	}

	if strings.HasPrefix(strings.ToLower(trimmed), "file:") {
		pathPart, _, _ := strings.Cut(trimmed[len("file:"):], "?")
		return dsnSummary{Type: "sqlite", Path: strings.TrimSpace(pathPart)}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return dsnSummary{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
	default:
		return dsnSummary{}, fmt.Errorf("unsupported dsn scheme %q", u.Scheme)
	}

	port := 5432
	if rawPort := u.Port(); rawPort != "" {
		parsed, errPort := strconv.Atoi(rawPort)
		if errPort != nil {
			return dsnSummary{}, fmt.Errorf("parse port: %w", errPort)
		}
		port = parsed
	}
	out := dsnSummary{
		Type:    "postgres",
		Host:    u.Hostname(),
		Port:    port,
		Name:    strings.TrimPrefix(u.Path, "/"),
		SSLMode: u.Query().Get("sslmode"),
	}
	if out.SSLMode == "" {
		out.SSLMode = "disable"
	}
	if u.User != nil {
		out.User = u.User.Username()
		_, out.PasswordSet = u.User.Password()
	}
	return out, nil
}

// describeDSN never returns the password.
func describeDSN(dsn string) string {
	summary, err := summarizeDSN(dsn)
	if err != nil {
		return "unparsed dsn"
	}
	return summary.String()
}
