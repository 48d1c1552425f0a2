// Package configstore implements domain.ConfigView on top of viper:
// YAML config file plus environment variable overrides, the same pattern
// webBridgeBot's config package uses for its bot configuration.
package configstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"tgspider/internal/domain"
)

const (
	defaultChunkSize       int64 = 512 * 1024
	defaultDownloadThreads       = 5
	defaultMaxRetries            = 3
	defaultConcurrency           = 3
)

// Store is a viper-backed domain.ConfigView. Reads go straight through
// viper's own precedence (env overrides file); the one write path,
// SetLastID, is serialized through a single background goroutine so
// concurrent channel checkpoints never race the same YAML file.
type Store struct {
	v *viper.Viper

	mu      sync.RWMutex
	lastIDs map[string]int

	writes chan lastIDWrite
	done   chan struct{}
}

type lastIDWrite struct {
	channelID string
	id        int
}

// Load reads configPath (a YAML file) with environment variable overrides
// and starts the async checkpoint writer. A missing configPath is not an
// error: defaults and environment apply, and the file is written on the
// first checkpoint write-back or on Close.
func Load(configPath string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		log.Printf("[...] no config file at %s, using defaults and env", configPath)
	}

	setDefaults(v)

	s := &Store{
		v:       v,
		lastIDs: make(map[string]int),
		writes:  make(chan lastIDWrite, 64),
		done:    make(chan struct{}),
	}

	for id, val := range v.GetStringMap("spider.lastids") {
		if n, ok := val.(int); ok {
			s.lastIDs[id] = n
		} else if f, ok := val.(float64); ok {
			s.lastIDs[id] = int(f)
		}
	}

	go s.writeLoop()
	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("spider.concurrency", defaultConcurrency)
	v.SetDefault("spider.groupmessage", true)
	v.SetDefault("spider.acceleration", true)
	v.SetDefault("spider.downloadthreads", defaultDownloadThreads)
	v.SetDefault("spider.chunksize", defaultChunkSize)
	v.SetDefault("spider.maxretries", defaultMaxRetries)
	v.SetDefault("spider.newchannelstrategy", -1)
	v.SetDefault("spider.fileorganization", true)
	v.SetDefault("spider.createsubfolders", true)
	v.SetDefault("spider.datadir", "./downloads")
}

// Close stops the write-back goroutine, flushing any pending checkpoint.
func (s *Store) Close() error {
	close(s.writes)
	<-s.done
	return s.v.WriteConfig()
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for w := range s.writes {
		s.v.Set(fmt.Sprintf("spider.lastids.%s", w.channelID), w.id)
		if err := s.v.WriteConfig(); err != nil {
			log.Printf("[!] write config: %v", err)
		}
	}
}

func (s *Store) Concurrency() int { return s.v.GetInt("spider.concurrency") }

func (s *Store) Channels() []string { return s.v.GetStringSlice("spider.channels") }

func (s *Store) LastID(channelID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastIDs[channelID]
}

func (s *Store) SetLastID(channelID string, id int) {
	s.mu.Lock()
	s.lastIDs[channelID] = id
	s.mu.Unlock()

	select {
	case s.writes <- lastIDWrite{channelID: channelID, id: id}:
	default:
		log.Printf("[!] checkpoint write queue full, dropping an intermediate update for %s", channelID)
	}
}

func (s *Store) MediasAllowed(channelID string) map[domain.MediaKind]bool {
	key := fmt.Sprintf("spider.mediaallowed.%s", channelID)
	kinds := s.v.GetStringSlice(key)
	if len(kinds) == 0 {
		kinds = s.v.GetStringSlice("spider.mediaallowed.default")
	}
	if len(kinds) == 0 {
		out := make(map[domain.MediaKind]bool, len(domain.AllMediaKinds))
		for _, k := range domain.AllMediaKinds {
			out[k] = true
		}
		return out
	}
	out := make(map[domain.MediaKind]bool, len(kinds))
	for _, k := range kinds {
		out[domain.MediaKind(k)] = true
	}
	return out
}

func (s *Store) GroupMessage() bool          { return s.v.GetBool("spider.groupmessage") }
func (s *Store) AccelerationEnabled() bool   { return s.v.GetBool("spider.acceleration") }
func (s *Store) DownloadThreads() int        { return s.v.GetInt("spider.downloadthreads") }
func (s *Store) ChunkSize() int64            { return s.v.GetInt64("spider.chunksize") }
func (s *Store) MaxRetries() int             { return s.v.GetInt("spider.maxretries") }
func (s *Store) NewChannelStrategy() int     { return s.v.GetInt("spider.newchannelstrategy") }
func (s *Store) FileOrganizationEnabled() bool { return s.v.GetBool("spider.fileorganization") }
func (s *Store) CreateSubfolders() bool      { return s.v.GetBool("spider.createsubfolders") }
func (s *Store) DataDir() string             { return s.v.GetString("spider.datadir") }

func (s *Store) SizeFilter(kind domain.MediaKind, channelID string) (string, bool) {
	perChannel := fmt.Sprintf("spider.sizefilter.%s.%s", channelID, kind)
	if v := s.v.GetString(perChannel); v != "" {
		return v, true
	}
	def := fmt.Sprintf("spider.sizefilter.default.%s", kind)
	if v := s.v.GetString(def); v != "" {
		return v, true
	}
	return "", false
}
