// cmd/preflight/main.go
package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/hamed0406/uptimemonitor/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load()
	if err != nil {
		fail(err.Error())
	}

	if cfg.Addr == "" {
		warn("ADDR is empty; the status server is disabled.")
	} else {
		ok("ADDR=" + cfg.Addr)
	}

	switch cfg.Store {
	case config.StoreMemory:
		warn("STORE=memory; history and incidents are lost on restart.")
		if len(cfg.Targets) == 0 {
			warn("no targets configured; set CONFIG_FILE with a targets list.")
		}
	case config.StorePostgres:
		ok("STORE=postgres, DATABASE_URL present")
	case config.StoreSQLite:
		ok("STORE=sqlite at " + cfg.SQLitePath)
	}

	if cfg.RedisURL != "" {
		ok("REDIS_URL present; latest outcomes are cached")
	}

	if cfg.SlackWebhook == "" && cfg.Webhook.URL == "" && cfg.Email.Host == "" {
		warn("no notification channel (SLACK_WEBHOOK, WEBHOOK_URL, SMTP_HOST); incidents will only be logged.")
	}
	if cfg.Email.Host != "" {
		if len(cfg.Email.To) == 0 {
			fail("SMTP_HOST is set but SMTP_TO is empty")
		}
		ok(fmt.Sprintf("SMTP_HOST present, %d recipients", len(cfg.Email.To)))
	}
	for name, v := range map[string]string{"SLACK_WEBHOOK": cfg.SlackWebhook, "WEBHOOK_URL": cfg.Webhook.URL} {
		if v == "" {
			continue
		}
		if u, err := url.ParseRequestURI(v); err != nil || !strings.HasPrefix(u.Scheme, "http") {
			fail(name + " is not an http(s) URL")
		}
		ok(name + " present")
	}

	for _, t := range cfg.Targets {
		tt := t.WithDefaults()
		if tt.Interval < tt.Timeout {
			warn(fmt.Sprintf("target %s: interval %s is shorter than timeout %s", tt.Label(), tt.Interval, tt.Timeout))
		}
	}
	if n := len(cfg.Targets); n > 0 {
		ok(fmt.Sprintf("%d targets valid", n))
	}

	ok("preflight passed")
}
