package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
	"github.com/DevRickLin/feishu-market-bot/internal/infra/feishu"

	_ "modernc.org/sqlite"
)

// Repositories contains all repositories
type Repositories struct {
	Listing    repo.ListingRepo
	Profile    repo.ProfileRepo
	Preference repo.PreferenceRepo
	Session    repo.SessionRepo
	Message    repo.MessageRepo
	Channel    repo.ChannelRepo
	Vision     repo.ImageValidator
	Events     repo.EventRepo

	db *sql.DB
}

// Options carries what the adapters need besides the clients
type Options struct {
	DBPath        string
	ChannelChatID string
	AdminOpenID   string
}

// OpenDB opens the sqlite database. One connection serializes all writers.
func OpenDB(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewStores opens the database and creates the sqlite-backed repositories
func NewStores(dbPath string) (*Repositories, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	r := &Repositories{db: db}
	if r.Listing, err = NewListingRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if r.Profile, err = NewProfileRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if r.Preference, err = NewPreferenceRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if r.Session, err = NewSessionRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// NewRepositories creates all repositories
func NewRepositories(
	feishuClient *feishu.Client,
	validator repo.ImageValidator,
	events repo.EventRepo,
	opts Options,
) (*Repositories, error) {
	r, err := NewStores(opts.DBPath)
	if err != nil {
		return nil, err
	}

	r.Message = NewMessageRepo(feishuClient, opts.AdminOpenID)
	r.Channel = NewChannelRepo(feishuClient, opts.ChannelChatID)
	r.Vision = validator
	r.Events = events
	if r.Events == nil {
		r.Events = NopEventRepo()
	}
	return r, nil
}

// Close closes the database
func (r *Repositories) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
