package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/pkg/sentinel"
)

const redisKeyPrefix = "causality:archive:"

// RedisArchive persists archived register bodies in Redis. Records are
// written with the integrity hash alongside the body so Verify needs no
// other source.
type RedisArchive struct {
	client *redis.Client
}

// NewRedisArchive wraps an existing Redis client.
func NewRedisArchive(client *redis.Client) *RedisArchive {
	return &RedisArchive{client: client}
}

func (a *RedisArchive) Put(ctx context.Context, reg *domain.Register) (Record, error) {
	body, err := EncodeBody(reg)
	if err != nil {
		return Record{}, err
	}
	record := Record{
		ArchiveID:     domain.ArchiveID(uuid.NewString()),
		RegisterID:    reg.ID,
		Body:          body,
		IntegrityHash: HashBody(body),
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return Record{}, fmt.Errorf("encode archive record: %w", err)
	}
	if err := a.client.Set(ctx, redisKeyPrefix+string(record.ArchiveID), payload, 0).Err(); err != nil {
		return Record{}, fmt.Errorf("write archive record: %w", err)
	}

	// Read back before reporting success: the store entry must not be
	// replaced until the archive write is verified.
	ok, err := a.Verify(ctx, record.ArchiveID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, fmt.Errorf("archive record %s failed readback verification", record.ArchiveID)
	}
	return record, nil
}

func (a *RedisArchive) Get(ctx context.Context, id domain.ArchiveID) (Record, error) {
	payload, err := a.client.Get(ctx, redisKeyPrefix+string(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("read archive record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return Record{}, fmt.Errorf("decode archive record: %w", err)
	}
	return record, nil
}

func (a *RedisArchive) Verify(ctx context.Context, id domain.ArchiveID) (bool, error) {
	record, err := a.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return HashBody(record.Body) == record.IntegrityHash, nil
}
