// Package redisstore keeps fleet records in Redis as JSON values with one
// sorted set per collection holding insertion order.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v9"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/store"
)

const DefaultPrefix = "skylark"

// Store implements store.Backend. Updates are optimistic: the record key is
// WATCHed while the patch is applied, so a concurrent writer aborts the
// transaction and the caller sees store.ErrVersionConflict.
type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ store.Backend = (*Store)(nil)

func New(opt *redis.Options, prefix string) *Store {
	return NewFromClient(redis.NewClient(opt), prefix)
}

func NewFromClient(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

type collection[T any] struct {
	entity  string
	id      func(T) string
	version func(*T) *int64
}

var (
	pilots = collection[domain.Pilot]{
		entity:  "pilot",
		id:      func(p domain.Pilot) string { return p.ID },
		version: func(p *domain.Pilot) *int64 { return &p.Version },
	}
	drones = collection[domain.Drone]{
		entity:  "drone",
		id:      func(d domain.Drone) string { return d.ID },
		version: func(d *domain.Drone) *int64 { return &d.Version },
	}
	missions = collection[domain.Mission]{
		entity:  "mission",
		id:      func(m domain.Mission) string { return m.ID },
		version: func(m *domain.Mission) *int64 { return &m.Version },
	}
)

func (s *Store) recordKey(entity, id string) string { return s.prefix + ":" + entity + ":" + id }
func (s *Store) indexKey(entity string) string      { return s.prefix + ":" + entity + "s" }
func (s *Store) seqKey() string                     { return s.prefix + ":seq" }

func create[T any](ctx context.Context, s *Store, c collection[T], rec T) (T, error) {
	id := c.id(rec)
	key := s.recordKey(c.entity, id)
	*c.version(&rec) = 1
	data, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("encode %s %s: %w", c.entity, id, err)
	}
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.Duplicate(c.entity, id)
		}
		seq, err := tx.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.indexKey(c.entity), redis.Z{Score: float64(seq), Member: id})
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return rec, store.Duplicate(c.entity, id)
	}
	return rec, err
}

func get[T any](ctx context.Context, g interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}, s *Store, c collection[T], id string) (T, error) {
	var rec T
	data, err := g.Get(ctx, s.recordKey(c.entity, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, store.NotFound(c.entity, id)
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode %s %s: %w", c.entity, id, err)
	}
	return rec, nil
}

func list[T any](ctx context.Context, s *Store, c collection[T], match func(T) bool) ([]T, error) {
	ids, err := s.rdb.ZRange(ctx, s.indexKey(c.entity), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := []T{}
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.recordKey(c.entity, id))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", c.entity, ids[i], err)
		}
		if match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func update[T any](ctx context.Context, s *Store, c collection[T], id string, apply func(T) (T, error)) (T, error) {
	key := s.recordKey(c.entity, id)
	var out T
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := get(ctx, tx, s, c, id)
		if err != nil {
			return err
		}
		if out, err = apply(rec); err != nil {
			return err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", c.entity, id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return out, fmt.Errorf("%s %s changed concurrently: %w", c.entity, id, store.ErrVersionConflict)
	}
	return out, err
}

func (s *Store) CreatePilot(ctx context.Context, p domain.Pilot) (domain.Pilot, error) {
	if err := store.ValidatePilot(p); err != nil {
		return domain.Pilot{}, err
	}
	return create(ctx, s, pilots, p)
}

func (s *Store) CreateDrone(ctx context.Context, d domain.Drone) (domain.Drone, error) {
	if err := store.ValidateDrone(d); err != nil {
		return domain.Drone{}, err
	}
	return create(ctx, s, drones, d)
}

func (s *Store) CreateMission(ctx context.Context, m domain.Mission) (domain.Mission, error) {
	if err := store.ValidateMission(m); err != nil {
		return domain.Mission{}, err
	}
	return create(ctx, s, missions, m)
}

func (s *Store) GetPilot(ctx context.Context, id string) (domain.Pilot, error) {
	return get(ctx, s.rdb, s, pilots, id)
}

func (s *Store) GetDrone(ctx context.Context, id string) (domain.Drone, error) {
	return get(ctx, s.rdb, s, drones, id)
}

func (s *Store) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	return get(ctx, s.rdb, s, missions, id)
}

func (s *Store) ListPilots(ctx context.Context, f store.PilotFilter) ([]domain.Pilot, error) {
	return list(ctx, s, pilots, f.Match)
}

func (s *Store) ListDrones(ctx context.Context, f store.DroneFilter) ([]domain.Drone, error) {
	return list(ctx, s, drones, f.Match)
}

func (s *Store) ListMissions(ctx context.Context, f store.MissionFilter) ([]domain.Mission, error) {
	return list(ctx, s, missions, f.Match)
}

func (s *Store) UpdatePilot(ctx context.Context, id string, p store.PilotPatch) (domain.Pilot, error) {
	return update(ctx, s, pilots, id, p.Apply)
}

func (s *Store) UpdateDrone(ctx context.Context, id string, p store.DronePatch) (domain.Drone, error) {
	return update(ctx, s, drones, id, p.Apply)
}

func (s *Store) UpdateMission(ctx context.Context, id string, p store.MissionPatch) (domain.Mission, error) {
	return update(ctx, s, missions, id, p.Apply)
}
