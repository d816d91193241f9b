package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flashbots/tokenring/crypto"
	"github.com/flashbots/tokenring/protocol"
	"github.com/flashbots/tokenring/station"
	_ "github.com/lib/pq"
)

// Store persists the coordinator's membership. It satisfies
// station.MembershipStore.
type Store interface {
	station.MembershipStore
	LoadMembers(ctx context.Context) ([]station.Member, error)
	// Reset forgets all members; a restarted coordinator forms a new ring.
	Reset(ctx context.Context) error
	Close() error
}

// PostgresStore implements Store with PostgreSQL persistence. Every change is
// also appended to an audit table.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	// DSN, if set, is used as is and the other fields are ignored.
	DSN string `yaml:"dsn"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore connects and creates the schema if needed.
func NewPostgresStore(ctx context.Context, config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS ring_members (
	station_id VARCHAR(64) PRIMARY KEY,
	public_key VARCHAR(64) NOT NULL,
	address VARCHAR(512) NOT NULL,
	joined_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ring_events (
	id BIGSERIAL PRIMARY KEY,
	station_id VARCHAR(64) NOT NULL,
	event VARCHAR(16) NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ring_events_station ON ring_events(station_id);
`

func (s *PostgresStore) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SaveMember upserts m and records a join event.
func (s *PostgresStore) SaveMember(ctx context.Context, m station.Member) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO ring_members (station_id, public_key, address, joined_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (station_id) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			address = EXCLUDED.address,
			joined_at = EXCLUDED.joined_at,
			updated_at = NOW()
		`, string(m.ID), m.PublicKey.String(), m.Address, m.JoinedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO ring_events (station_id, event) VALUES ($1, 'join')", string(m.ID))
		return err
	})
}

// DeleteMember removes id and records a leave event.
func (s *PostgresStore) DeleteMember(ctx context.Context, id protocol.StationID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM ring_members WHERE station_id = $1", string(id)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO ring_events (station_id, event) VALUES ($1, 'leave')", string(id))
		return err
	})
}

// LoadMembers returns the persisted members ordered by join time.
func (s *PostgresStore) LoadMembers(ctx context.Context) ([]station.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT station_id, public_key, address, joined_at
		FROM ring_members
		ORDER BY joined_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []station.Member
	for rows.Next() {
		var (
			id, publicKey, address string
			joinedAt               time.Time
		)
		if err := rows.Scan(&id, &publicKey, &address, &joinedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		pk, err := crypto.NewPublicKeyFromString(publicKey)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", id, err)
		}
		members = append(members, station.Member{
			ID:        protocol.StationID(id),
			PublicKey: pk,
			Address:   address,
			JoinedAt:  joinedAt,
		})
	}
	return members, rows.Err()
}

// Reset deletes all members. The audit table is kept.
func (s *PostgresStore) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, "DELETE FROM ring_members")
	return err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InMemoryStore implements Store without a database.
type InMemoryStore struct {
	mu      sync.Mutex
	members map[protocol.StationID]station.Member
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{members: make(map[protocol.StationID]station.Member)}
}

// SaveMember stores m.
func (s *InMemoryStore) SaveMember(_ context.Context, m station.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
	return nil
}

// DeleteMember removes id.
func (s *InMemoryStore) DeleteMember(_ context.Context, id protocol.StationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, id)
	return nil
}

// LoadMembers returns all stored members ordered by join time.
func (s *InMemoryStore) LoadMembers(context.Context) ([]station.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make([]station.Member, 0, len(s.members))
	for _, m := range s.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

// Reset deletes all members.
func (s *InMemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.members)
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}
