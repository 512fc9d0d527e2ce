// Package sync refreshes saved entries against their sources and flags
// the ones with new chapters.
package sync

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/chapterstate"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/config"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/registry"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/store"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/websocket"
)

const (
	maxFetchAttempts = 3
	retryBaseDelay   = 2 * time.Second
)

// Progress is broadcast to websocket clients as a pass advances.
type Progress struct {
	PluginID string `json:"plugin_id"`
	Message  string `json:"message"`
	Done     bool   `json:"done"`
}

// Engine coordinates sync passes. At most one pass runs at a time and
// opportunistic triggers inside the throttle window are no-ops.
type Engine struct {
	st  *store.Store
	reg *registry.Registry
	cfg *config.Config
	hub *websocket.Hub

	scheduler *gocron.Scheduler

	mu      sync.Mutex
	syncing bool
	lastRun time.Time

	// Per-plugin cancellation for in-flight refreshes.
	cancels map[string]context.CancelFunc

	// Per-tree write serialization.
	treeMu sync.Mutex
	trees  map[models.SourceRef]*sync.Mutex
}

// New builds an engine. The hub may be nil in tests.
func New(st *store.Store, reg *registry.Registry, cfg *config.Config, hub *websocket.Hub) *Engine {
	e := &Engine{
		st:      st,
		reg:     reg,
		cfg:     cfg,
		hub:     hub,
		cancels: make(map[string]context.CancelFunc),
		trees:   make(map[models.SourceRef]*sync.Mutex),
	}
	reg.SetChangeNotifier(e.NotifyChange)
	return e
}

// Start schedules background passes. A zero interval disables them.
func (e *Engine) Start() {
	interval := e.cfg.Sync.Interval
	if interval == 0 {
		log.Println("Sync interval is 0, scheduled sync is disabled.")
		return
	}
	e.scheduler = gocron.NewScheduler(time.UTC)
	e.scheduler.SingletonModeAll()
	if _, err := e.scheduler.Every(interval).Minutes().Do(func() {
		e.Trigger()
	}); err != nil {
		log.Printf("Error scheduling sync job: %v", err)
		return
	}
	log.Printf("Scheduling sync every %d minutes.", interval)
	e.scheduler.StartAsync()
}

// Stop halts the scheduler and cancels in-flight refreshes.
func (e *Engine) Stop() {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()
}

// Trigger starts a pass unless one is running or the last successful
// pass finished inside the throttle window. Reports whether a pass was
// started.
func (e *Engine) Trigger() bool {
	e.mu.Lock()
	if e.syncing || time.Since(e.lastRun) < e.cfg.SyncMinInterval() {
		e.mu.Unlock()
		return false
	}
	e.syncing = true
	e.mu.Unlock()

	go e.runPass()
	return true
}

// CancelPlugin abandons any in-flight refresh of one plugin, used when
// it is uninstalled or disabled mid-sync.
func (e *Engine) CancelPlugin(pluginID string) {
	e.mu.Lock()
	cancel, ok := e.cancels[pluginID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// NotifyChange refreshes a single plugin out of schedule, typically on
// a filesystem watcher event. The global throttle does not apply, but a
// running pass takes precedence.
func (e *Engine) NotifyChange(pluginID string) {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return
	}
	e.syncing = true
	e.mu.Unlock()

	go func() {
		defer e.finishPass(false)
		d, err := e.reg.Get(pluginID)
		if err != nil || !d.Enabled || d.NeedsAttention {
			return
		}
		e.refreshPlugin(d)
	}()
}

func (e *Engine) runPass() {
	ok := true
	defer func() { e.finishPass(ok) }()

	plugins, err := e.reg.ListEnabled()
	if err != nil {
		log.Printf("Sync pass failed to list plugins: %v", err)
		ok = false
		return
	}

	var wg sync.WaitGroup
	for _, d := range plugins {
		if d.NeedsAttention {
			log.Printf("[%s] skipped, needs re-authorization", d.ID)
			continue
		}
		wg.Add(1)
		go func(d *models.PluginDescriptor) {
			defer wg.Done()
			e.refreshPlugin(d)
		}(d)
	}
	wg.Wait()
}

// finishPass clears the in-progress flag. Only a successful full pass
// moves the throttle clock.
func (e *Engine) finishPass(success bool) {
	e.mu.Lock()
	e.syncing = false
	if success {
		e.lastRun = time.Now()
	}
	e.mu.Unlock()
}

// refreshPlugin re-checks every saved entry of one plugin.
func (e *Engine) refreshPlugin(d *models.PluginDescriptor) {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[d.ID] = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.cancels, d.ID)
		e.mu.Unlock()
	}()

	entries, err := e.st.ListSavedEntriesForPlugin(d.ID)
	if err != nil {
		log.Printf("[%s] sync failed to list saved entries: %v", d.ID, err)
		return
	}
	if len(entries) == 0 {
		return
	}

	adapter, err := e.reg.Adapter(d.ID)
	if err != nil {
		log.Printf("[%s] sync cannot build adapter: %v", d.ID, err)
		return
	}

	e.progress(d.ID, "sync started", false)
	for _, entry := range entries {
		if ctx.Err() != nil {
			log.Printf("[%s] sync abandoned", d.ID)
			return
		}
		if err := e.refreshEntry(ctx, adapter, entry); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if source.KindOf(err) == source.KindAuthExpired {
				log.Printf("[%s] authorization expired, flagging for attention", d.ID)
				e.reg.MarkNeedsAttention(d.ID)
				return
			}
			log.Printf("[%s] failed to refresh %s: %v", d.ID, entry.MangaID, err)
		}
	}
	e.progress(d.ID, "sync finished", true)
}

// refreshEntry fetches the current tree for one saved entry, compares
// its newest chapter against the stored snapshot and persists both the
// tree and the check result.
func (e *Engine) refreshEntry(ctx context.Context, adapter source.Adapter, entry *models.SavedEntry) error {
	ref := models.SourceRef{MangaID: entry.MangaID, PluginID: entry.PluginID}

	m, err := e.fetchWithRetry(ctx, adapter, entry.MangaID)
	if err != nil {
		return err
	}

	latest := m.LatestChapter()
	if latest == nil {
		latest = newestChapter(m)
	}

	updates := entry.Updates
	newState := entry.LatestChapter
	if latest != nil {
		prev, err := chapterstate.Decode(entry.LatestChapter)
		// A corrupted snapshot means no known previous chapter, so the
		// current one counts as an update.
		known := err == nil && prev.ID == latest.ID
		if !known {
			updates = true
		}
		newState = chapterstate.Encode(chapterstate.Snapshot{ID: latest.ID, Title: latest.Title})
	}

	// Sync workers never write the same tree concurrently. The query
	// layer's refresh path does not take this lock; it is safe against
	// it only because UpsertMangaTree replaces the tree in one
	// transaction.
	lock := e.treeLock(ref)
	lock.Lock()
	defer lock.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := e.st.UpsertMangaTree(m); err != nil {
		return err
	}
	return e.st.MarkSavedEntryChecked(ref, updates, newState)
}

// fetchWithRetry retries transient failures with bounded backoff. Other
// error kinds surface immediately.
func (e *Engine) fetchWithRetry(ctx context.Context, adapter source.Adapter, mangaID string) (*models.Manga, error) {
	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBaseDelay << (attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		m, err := adapter.FetchDetail(ctx, mangaID)
		if err == nil {
			return m, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || source.KindOf(err) != source.KindUnavailable {
			return nil, err
		}
	}
	return nil, lastErr
}

// newestChapter falls back to the last chapter of the last group when
// the source does not point out the latest one.
func newestChapter(m *models.Manga) *models.Chapter {
	for i := len(m.Groups) - 1; i >= 0; i-- {
		if n := len(m.Groups[i].Chapters); n > 0 {
			return m.Groups[i].Chapters[n-1]
		}
	}
	return nil
}

func (e *Engine) treeLock(ref models.SourceRef) *sync.Mutex {
	e.treeMu.Lock()
	defer e.treeMu.Unlock()
	lock, ok := e.trees[ref]
	if !ok {
		lock = &sync.Mutex{}
		e.trees[ref] = lock
	}
	return lock
}

func (e *Engine) progress(pluginID, message string, done bool) {
	if e.hub == nil {
		return
	}
	e.hub.BroadcastJSON(Progress{PluginID: pluginID, Message: message, Done: done})
}
