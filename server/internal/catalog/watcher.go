package catalog

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher 监听目录文件变化并热更新 Holder。
// 监听的是文件所在目录：编辑器保存时常见的 rename/create 也能被捕获。
// 新内容校验失败时保留旧目录。
type Watcher struct {
	path     string
	holder   *Holder
	logger   *log.Logger
	debounce time.Duration
	onReload func(*Catalog)
}

// NewWatcher 创建目录监听器，onReload 可为空。
func NewWatcher(path string, holder *Holder, logger *log.Logger, onReload func(*Catalog)) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		holder:   holder,
		logger:   logger,
		debounce: defaultDebounce,
		onReload: onReload,
	}
}

// Run 阻塞运行直到 ctx 结束。
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Printf("[Catalog] 👀 watching %s", w.path)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// 合并短时间内的多次写入
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("[Catalog] watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path, w.logger)
	if err != nil {
		w.logger.Printf("[Catalog] ❌ reload failed, keeping previous catalog: %v", err)
		return
	}
	w.holder.Swap(next)
	w.logger.Printf("[Catalog] ✅ reloaded %s (%d agents)", w.path, len(next.entries))

	if w.onReload != nil {
		w.onReload(next)
	}
}
