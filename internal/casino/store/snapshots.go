package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avvvet/casino-services/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SnapshotStore keeps engine snapshots in postgres, retaining the newest
// keep rows.
type SnapshotStore struct {
	db   *pgxpool.Pool
	keep int
}

func NewSnapshotStore(db *pgxpool.Pool, keep int) *SnapshotStore {
	if keep <= 0 {
		keep = 10
	}
	return &SnapshotStore{db: db, keep: keep}
}

func (s *SnapshotStore) Save(ctx context.Context, state []byte) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO snapshots (state) VALUES ($1)`, state); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	_, err = tx.Exec(ctx, `
        DELETE FROM snapshots
        WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT $1)
    `, s.keep)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *SnapshotStore) Load(ctx context.Context) ([]byte, error) {
	var state []byte
	err := s.db.QueryRow(ctx, `SELECT state FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return state, nil
}

const archiveCollection = "snapshots"

type archived struct {
	State     []byte    `bson:"state"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// MongoArchive keeps snapshots in a collection whose documents expire after
// ttl.
type MongoArchive struct {
	coll *mongo.Collection
	ttl  time.Duration
}

func NewMongoArchive(ctx context.Context, database *mongo.Database, ttl time.Duration) (*MongoArchive, error) {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if err := db.CreateTTLIndexForCollection(ctx, database, archiveCollection, "expires_at"); err != nil {
		return nil, err
	}
	return &MongoArchive{coll: database.Collection(archiveCollection), ttl: ttl}, nil
}

func (m *MongoArchive) Save(ctx context.Context, state []byte) error {
	now := time.Now().UTC()
	doc := archived{State: state, CreatedAt: now, ExpiresAt: now.Add(m.ttl)}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (m *MongoArchive) Load(ctx context.Context) ([]byte, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var doc archived
	err := m.coll.FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find snapshot: %w", err)
	}
	return doc.State, nil
}

// FileSnapshots writes the snapshot to a single file, replacing it
// atomically on every save.
type FileSnapshots struct {
	path string
}

func NewFileSnapshots(dir string) (*FileSnapshots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileSnapshots{path: filepath.Join(dir, "casino_state.json")}, nil
}

func (f *FileSnapshots) Save(_ context.Context, state []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".casino_state-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(state); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (f *FileSnapshots) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}
