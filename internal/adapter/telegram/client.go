// Package telegram implements the Telegram RPC facade on top
// of gotd/td. It is the only package in this module that imports gotd/td.
package telegram

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/coocood/freecache"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"tgspider/internal/pkg/logtag"
)

func init() {
	gob.Register(accessHashEntry{})
}

// AuthInput is the interface the facade needs from an interactive
// credential prompt. The concrete implementation (promptui-backed) lives
// in the ambient console adapter, outside the core.
type AuthInput interface {
	GetPhoneNumber() (string, error)
	GetCode() (string, error)
	GetPassword() (string, error)
}

type accessHashEntry struct {
	AccessHash int64
}

// Facade implements domain.BlobFacade on top of a primary gotd/td client
// plus a lazily-grown pool of secondary clients bound to other data
// centers (for files that migrated).
type Facade struct {
	appID       int
	appHash     string
	sessionPath string

	primary    *telegram.Client
	primaryAPI *tg.Client

	mu        sync.RWMutex
	dcClients map[int]*telegram.Client
	dcAPIs    map[int]*tg.Client

	hashCache *freecache.Cache
}

// NewFacade constructs a Facade bound to the given app credentials and
// session file. It does not connect; call Start.
func NewFacade(appID int, appHash, sessionPath string) (*Facade, error) {
	if err := os.MkdirAll(filepath.Dir(sessionPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}

	return &Facade{
		appID:       appID,
		appHash:     appHash,
		sessionPath: sessionPath,
		dcClients:   make(map[int]*telegram.Client),
		dcAPIs:      make(map[int]*tg.Client),
		hashCache:   freecache.NewCache(1 * 1024 * 1024),
	}, nil
}

// Start connects and authenticates the primary client, blocking until the
// connection is ready or ctx is cancelled. A login/authentication failure
// here is fatal: the caller should refuse to start.
func (f *Facade) Start(ctx context.Context, input AuthInput) error {
	opts := telegram.Options{
		SessionStorage: &session.FileStorage{Path: f.sessionPath},
	}
	f.primary = telegram.NewClient(f.appID, f.appHash, opts)

	ready := make(chan error, 1)

	go func() {
		log.Println(logtag.Info + " starting Telegram client run loop")
		err := f.primary.Run(ctx, func(ctx context.Context) error {
			status, err := f.primary.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("auth status check failed: %w", err)
			}

			if !status.Authorized {
				log.Println(logtag.Info + " not authorized, starting auth flow")
				flow := auth.NewFlow(termAuth{input: input}, auth.SendCodeOptions{})
				if err := f.primary.Auth().IfNecessary(ctx, flow); err != nil {
					return fmt.Errorf("auth flow failed: %w", err)
				}
				log.Println(logtag.OK + " authorization successful")
			}

			f.primaryAPI = f.primary.API()

			select {
			case ready <- nil:
			default:
			}

			log.Println(logtag.OK + " client is ready and connected")
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil {
			select {
			case ready <- err:
			default:
			}
		}
	}()

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Facade) Close() error {
	return nil
}

func (f *Facade) cacheAccessHash(id string, hash int64) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(accessHashEntry{AccessHash: hash}); err != nil {
		return
	}
	_ = f.hashCache.Set([]byte(id), buf.Bytes(), 0)
}

func (f *Facade) getAccessHash(id string) (int64, bool) {
	data, err := f.hashCache.Get([]byte(id))
	if err != nil {
		return 0, false
	}
	var entry accessHashEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		return 0, false
	}
	return entry.AccessHash, true
}
