// Package prefs 持久化少量应用级偏好（目前只有“是否已访问过”）。
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type file struct {
	Visited   bool      `yaml:"visited"`
	VisitedAt time.Time `yaml:"visited_at,omitempty"`
}

// Store 是 YAML 文件支撑的偏好存储，启动时读取一次，之后的修改立即落盘。
type Store struct {
	path string
	now  func() time.Time

	mu   sync.Mutex
	data file
}

// Open 读取偏好文件，文件不存在时视为首次访问。
func Open(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", path, err)
	}
	return s, nil
}

// FirstVisit 报告是否还没有看过欢迎页。
func (s *Store) FirstVisit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.data.Visited
}

// MarkVisited 记录已访问，重复调用不改变首次访问时间。
func (s *Store) MarkVisited() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Visited {
		return nil
	}
	next := file{Visited: true, VisitedAt: s.now().UTC()}
	if err := s.write(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// write 先写临时文件再 rename
func (s *Store) write(f file) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create prefs dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write prefs tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename prefs: %w", err)
	}
	return nil
}
