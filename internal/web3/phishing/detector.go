package phishing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/dappbridge/internal/shared/httpclient"
)

// ErrNoSource is returned by Refresh when no list URL is configured.
var ErrNoSource = errors.New("no phishing list source configured")

// Options configures a Detector.
type Options struct {
	ListURL         string
	RefreshInterval time.Duration
	Timeout         time.Duration
	// CachePath is where the last good list is kept, zstd compressed.
	// Empty disables the disk cache.
	CachePath string
}

// Detector tests URLs against the current phishing list and refreshes the
// list from its source at most once per RefreshInterval.
type Detector struct {
	opts    Options
	client  *httpclient.Client
	list    atomic.Pointer[List]
	refresh rate.Sometimes
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewDetector creates a detector. The disk cache, when present, is loaded
// immediately so Test works before the first refresh. client may be nil
// when ListURL is empty.
func NewDetector(opts Options, client *httpclient.Client, metrics *monitoring.Metrics, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	d := &Detector{
		opts:    opts,
		client:  client,
		refresh: rate.Sometimes{Interval: opts.RefreshInterval},
		metrics: metrics,
		logger:  logger.Named("phishing"),
	}
	d.list.Store(Compile(Config{}))

	if opts.CachePath != "" {
		if cfg, err := readCache(opts.CachePath); err == nil {
			d.list.Store(Compile(cfg))
			d.logger.Info("Loaded cached phishing list",
				zap.Int("version", cfg.Version), zap.Int("entries", d.list.Load().Size()))
		} else if !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("Ignoring unreadable phishing cache", zap.Error(err))
		}
	}
	return d
}

// SetList replaces the current list.
func (d *Detector) SetList(cfg Config) {
	d.list.Store(Compile(cfg))
}

// Test checks rawURL against the current list.
func (d *Detector) Test(rawURL string) Result {
	return d.list.Load().Test(rawURL)
}

// Stats describes the list currently in use.
type Stats struct {
	Version int `json:"version"`
	Entries int `json:"entries"`
}

// Stats returns the version and size of the current list.
func (d *Detector) Stats() Stats {
	l := d.list.Load()
	return Stats{Version: l.Version(), Entries: l.Size()}
}

// MaybeUpdateState refreshes the list if the refresh interval has passed
// since the last attempt. A failed refresh keeps the previous list. A zero
// interval refreshes once per process.
func (d *Detector) MaybeUpdateState(ctx context.Context) error {
	if d.opts.ListURL == "" {
		return nil
	}
	var err error
	d.refresh.Do(func() {
		err = d.Refresh(ctx)
	})
	return err
}

// Refresh fetches the list unconditionally.
func (d *Detector) Refresh(ctx context.Context) error {
	if d.opts.ListURL == "" || d.client == nil {
		return ErrNoSource
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	cfg, err := d.fetch(ctx)
	if err != nil {
		d.record("error")
		return fmt.Errorf("failed to refresh phishing list: %w", err)
	}

	d.list.Store(Compile(cfg))
	d.record("ok")
	d.logger.Info("Phishing list refreshed",
		zap.Int("version", cfg.Version), zap.Int("entries", d.list.Load().Size()))

	if d.opts.CachePath != "" {
		if err := writeCache(d.opts.CachePath, cfg); err != nil {
			d.logger.Warn("Failed to write phishing cache", zap.Error(err))
		}
	}
	return nil
}

func (d *Detector) fetch(ctx context.Context) (Config, error) {
	resp, err := d.client.Do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Accept", "application/json").Get(d.opts.ListURL)
	})
	if err != nil {
		return Config{}, err
	}
	if resp.StatusCode() != http.StatusOK {
		return Config{}, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	var cfg Config
	if err := sonic.Unmarshal(resp.Body(), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode phishing list: %w", err)
	}
	if len(cfg.Blacklist) == 0 && len(cfg.Fuzzylist) == 0 {
		return Config{}, errors.New("phishing list is empty")
	}
	return cfg, nil
}

func (d *Detector) record(status string) {
	if d.metrics != nil {
		d.metrics.RecordPhishingRefresh(status)
	}
}

func readCache(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open zstd stream: %w", err)
	}
	defer zr.Close()

	var cfg Config
	if err := sonic.ConfigDefault.NewDecoder(zr).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode phishing cache: %w", err)
	}
	return cfg, nil
}

func writeCache(path string, cfg Config) error {
	data, err := sonic.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".phishing-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		tmp.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
