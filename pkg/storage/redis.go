package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis server. Records are stored as
// hashes with a per-table id index set; state entries are plain strings.
// All keys are namespaced with the instance name. The store is safe for
// concurrent use.
type RedisStore struct {
	rdb          *redis.Client
	instanceName string
}

// NewRedisStore creates a store for the specified instance.
// Returns an error if instanceName is empty.
func NewRedisStore(redisOpts *redis.Options, instanceName string) (*RedisStore, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &RedisStore{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get retrieves a state value. Returns ErrNotFound for missing keys.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.rdb.Get(ctx, StateKey(s.instanceName, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state %q: %w", key, err)
	}
	return value, nil
}

// Set writes a state value, replacing any previous value.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, StateKey(s.instanceName, key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write state %q: %w", key, err)
	}
	return nil
}

// Delete removes a state value. Deleting a missing key is a no-op.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, StateKey(s.instanceName, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete state %q: %w", key, err)
	}
	return nil
}

// Insert writes a new record and returns its id. If the record carries no
// "id" field a fresh UUID is assigned. The record hash is written first,
// then the id is added to the table index.
func (s *RedisStore) Insert(ctx context.Context, table Table, record Record) (string, error) {
	if err := table.Validate(); err != nil {
		return "", err
	}

	id := record["id"]
	if id == "" {
		id = uuid.New().String()
	}

	if err := s.writeRecord(ctx, table, id, record); err != nil {
		return "", err
	}
	return id, nil
}

// Update replaces a record wholesale by its "id" field. Upsert semantics:
// the record is created if it does not exist.
func (s *RedisStore) Update(ctx context.Context, table Table, record Record) error {
	if err := table.Validate(); err != nil {
		return err
	}

	id := record["id"]
	if id == "" {
		return fmt.Errorf("record in %s has no id", table)
	}

	return s.writeRecord(ctx, table, id, record)
}

func (s *RedisStore) writeRecord(ctx context.Context, table Table, id string, record Record) error {
	hash := make(map[string]interface{}, len(record)+1)
	for field, value := range record {
		hash[field] = value
	}
	hash["id"] = id

	key := RecordKey(s.instanceName, table, id)

	// Delete before HSet so the write replaces the record wholesale; a bare
	// HSet merges fields, leaving stale ones from a previous version behind.
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, hash)
	pipe.SAdd(ctx, IndexKey(s.instanceName, table), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write record to %s: %w", table, err)
	}
	return nil
}

// Query returns every record in the table whose fields equal all fields in
// filter. A nil filter returns the whole table. Only equality filtering is
// supported; callers apply richer predicates in memory.
func (s *RedisStore) Query(ctx context.Context, table Table, filter Record) ([]Record, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	ids, err := s.rdb.SMembers(ctx, IndexKey(s.instanceName, table)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s index: %w", table, err)
	}

	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		hash, err := s.rdb.HGetAll(ctx, RecordKey(s.instanceName, table, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s from %s: %w", id, table, err)
		}
		if len(hash) == 0 {
			// Index entry with no hash: record was deleted out of band.
			continue
		}

		record := Record(hash)
		if record.Matches(filter) {
			records = append(records, record)
		}
	}

	return records, nil
}

// DeleteRecord removes a record and its index entry. Deleting a missing
// record is a no-op.
func (s *RedisStore) DeleteRecord(ctx context.Context, table Table, id string) error {
	if err := table.Validate(); err != nil {
		return err
	}

	if err := s.rdb.Del(ctx, RecordKey(s.instanceName, table, id)).Err(); err != nil {
		return fmt.Errorf("failed to delete record %s from %s: %w", id, table, err)
	}
	if err := s.rdb.SRem(ctx, IndexKey(s.instanceName, table), id).Err(); err != nil {
		return fmt.Errorf("failed to unindex record %s from %s: %w", id, table, err)
	}
	return nil
}
