package data

import (
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
	"github.com/DevRickLin/feishu-greeter/internal/infra/feishu"
)

// Repositories contains all repositories
type Repositories struct {
	Config    repo.ConfigRepo
	Tracker   repo.TrackerRepo
	Contacts  repo.ContactRepo
	Rules     repo.RulesRepo
	Transport repo.Transport
	Groups    repo.GroupRepo

	db *sql.DB
}

// Options configures the Feishu backed repositories
type Options struct {
	DBPath string
	Rate   RateConfig
	Group  GroupConfig
}

// NewRepositories opens the database and creates all repositories
func NewRepositories(client *feishu.Client, opts Options, logger zerolog.Logger) (*Repositories, error) {
	db, err := OpenDB(opts.DBPath)
	if err != nil {
		return nil, err
	}

	contacts := NewContactRepo(db)
	rules := NewRulesRepo(db)
	return &Repositories{
		Config:    NewConfigRepo(db),
		Tracker:   NewTrackerRepo(db),
		Contacts:  contacts,
		Rules:     rules,
		Transport: NewFeishuTransport(client, contacts, opts.Rate, logger),
		Groups:    NewFeishuGroupRepo(client, rules, opts.Group),
		db:        db,
	}, nil
}

// Close closes the database connection
func (r *Repositories) Close() error {
	return r.db.Close()
}
