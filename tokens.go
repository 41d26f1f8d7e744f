package webwindow

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// tokenRecord maps an issued auth token to its stable client id.
type tokenRecord struct {
	Token    string `gorm:"primaryKey"`
	ClientID uint64
}

// tokenStore backs cookie identification: it remembers which client id an
// auth token belongs to, so a reconnecting browser keeps its identity. The
// in-memory map is authoritative for the process; with a store path set,
// entries also persist across restarts in SQLite.
type tokenStore struct {
	mu  sync.Mutex
	ids map[string]uint64
	db  *gorm.DB
}

// openTokenStore opens the store. An empty path keeps tokens in memory only.
func openTokenStore(path string) (*tokenStore, error) {
	s := &tokenStore{ids: make(map[string]uint64)}
	if path == "" {
		return s, nil
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := db.AutoMigrate(&tokenRecord{}); err != nil {
		return nil, fmt.Errorf("migrating token table: %w", err)
	}
	s.db = db
	return s, nil
}

// issue mints a fresh auth token.
func (s *tokenStore) issue() string {
	return uuid.NewString()
}

// clientID resolves a token to its stable client id.
func (s *tokenStore) clientID(token string) (uint64, bool) {
	s.mu.Lock()
	id, ok := s.ids[token]
	s.mu.Unlock()
	if ok || s.db == nil {
		return id, ok
	}

	var rec tokenRecord
	if err := s.db.First(&rec, "token = ?", token).Error; err != nil {
		// Not found, or a broken store: either way the client just gets a
		// fresh identity.
		return 0, false
	}
	s.mu.Lock()
	s.ids[token] = rec.ClientID
	s.mu.Unlock()
	return rec.ClientID, true
}

// remember binds a token to a client id, replacing any previous binding.
func (s *tokenStore) remember(token string, id uint64) {
	s.mu.Lock()
	s.ids[token] = id
	s.mu.Unlock()
	if s.db != nil {
		_ = s.db.Save(&tokenRecord{Token: token, ClientID: id}).Error
	}
}

func (s *tokenStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// cookieValue extracts one cookie's value from a raw Cookie header.
func cookieValue(cookies, name string) string {
	if cookies == "" {
		return ""
	}
	r := http.Request{Header: http.Header{"Cookie": {cookies}}}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
