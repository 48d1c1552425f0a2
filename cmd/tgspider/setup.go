package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"tgspider/internal/adapter/configstore"
	"tgspider/internal/adapter/console"
	"tgspider/internal/adapter/filesystem"
	"tgspider/internal/adapter/telegram"
	"tgspider/internal/domain"
	"tgspider/internal/engine"
	"tgspider/internal/pkg/logtag"
)

// These are set by the linker during build, e.g.
// -ldflags "-X main.AppID=12345 -X main.AppHash=abcdef..."
var (
	AppID   string
	AppHash string
)

// env vars take precedence over linker-injected defaults, matching the
// teacher's own override order.
func resolveCredentials() (int, string, error) {
	appIDStr := AppID
	if v := os.Getenv("APP_ID"); v != "" {
		appIDStr = v
	}
	appHashStr := AppHash
	if v := os.Getenv("APP_HASH"); v != "" {
		appHashStr = v
	}
	if appIDStr == "" || appHashStr == "" {
		return 0, "", fmt.Errorf("APP_ID and APP_HASH must be provided via ldflags or env vars")
	}
	id, err := strconv.Atoi(appIDStr)
	if err != nil {
		return 0, "", fmt.Errorf("invalid APP_ID: %w", err)
	}
	return id, appHashStr, nil
}

func sessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "tgspider", "session.json"), nil
}

// boundFacade bundles the started telegram.Facade with its context-bound
// lifecycle so subcommands don't each re-derive it.
type boundFacade struct {
	facade *telegram.Facade
	cfg    domain.ConfigView
	ui     *console.Console
}

func setup(ctx context.Context) (*boundFacade, error) {
	appID, appHash, err := resolveCredentials()
	if err != nil {
		return nil, err
	}

	sp, err := sessionPath()
	if err != nil {
		return nil, err
	}

	cfg, err := configstore.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	ui := console.New(false)

	log.Printf("%s session file: %s", logtag.Info, sp)
	facade, err := telegram.NewFacade(appID, appHash, sp)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	log.Println(logtag.Info + " connecting to Telegram...")
	if err := facade.Start(ctx, ui); err != nil {
		return nil, fmt.Errorf("start telegram client: %w", err)
	}
	log.Println(logtag.OK + " connected")

	return &boundFacade{facade: facade, cfg: cfg, ui: ui}, nil
}

func (b *boundFacade) close() {
	_ = b.facade.Close()
	if s, ok := b.cfg.(interface{ Close() error }); ok {
		_ = s.Close()
	}
}

func newEngine(b *boundFacade) *engine.Engine {
	sink := filesystem.NewLocalFileSystem()
	return engine.New(b.facade, b.cfg, sink, b.ui)
}
