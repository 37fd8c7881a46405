package redisconn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyURL     = errors.New("REDIS_URL is empty")
	ErrWhitespace   = errors.New("REDIS_URL contains whitespace")
	ErrSchemeURL    = errors.New("REDIS_URL must start with redis:// or rediss://")
	ErrMissingHost  = errors.New("REDIS_URL has no host")
	ErrInvalidIndex = errors.New("REDIS_URL database index is not a number")
)

// ParseURL turns redis://[user:pass@]host:port[/db] into client options. rediss enables TLS.
func ParseURL(raw string) (*redis.Options, error) {
	if raw == "" {
		return nil, ErrEmptyURL
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return nil, ErrWhitespace
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, ErrSchemeURL
	}
	if u.Hostname() == "" {
		return nil, ErrMissingHost
	}
	addr := u.Host
	if u.Port() == "" {
		addr = u.Hostname() + ":6379"
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, ErrInvalidIndex
		}
		db = n
	}
	opts := &redis.Options{Addr: addr, DB: db}
	if u.User != nil {
		if pass, ok := u.User.Password(); ok {
			opts.Username = u.User.Username()
			opts.Password = pass
		} else {
			// redis://token@host
			opts.Password = u.User.Username()
		}
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
	}
	return opts, nil
}

// Open parses raw, connects and pings.
func Open(ctx context.Context, raw string) (*redis.Client, error) {
	opts, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Redact hides the password in a REDIS_URL for display.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
