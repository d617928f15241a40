package config

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/providers/file"

	"github.com/smykla-skalski/hookgate/pkg/config"
)

// DefaultWatchDebounce coalesces the burst of events editors produce on save.
const DefaultWatchDebounce = 150 * time.Millisecond

// ReloadFunc receives the result of a reload. On error cfg is nil and the
// previous configuration should stay active.
type ReloadFunc func(cfg *config.Config, err error)

// Watch watches the config files read by the last load and reloads on every
// change until ctx is done. Files that did not exist at load time are not
// watched. Watch returns nil once ctx is done.
func (l *KoanfLoader) Watch(ctx context.Context, debounce time.Duration, onReload ReloadFunc) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(debounce, func() {
			if ctx.Err() != nil {
				return
			}

			onReload(l.Reload())
		})
	}

	providers := make([]*file.File, 0, len(l.Sources()))

	defer func() {
		for _, p := range providers {
			_ = p.Unwatch()
		}

		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for _, path := range l.Sources() {
		p := file.Provider(path)

		err := p.Watch(func(_ any, err error) {
			if err != nil {
				onReload(nil, errors.Wrapf(err, "watching %s", path))

				return
			}

			trigger()
		})
		if err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}

		providers = append(providers, p)
	}

	<-ctx.Done()

	return nil
}
