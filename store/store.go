// Package store persists sessions to Redis so several collaborators can
// edit the same room. The session body travels as one YAML document per
// room; track edit locks are separate volatile keys with a TTL, so an
// abandoned lock clears itself after the stale timeout.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/looproom/looproom"
)

// ErrNotFound is returned when a room, track or clip does not exist.
var ErrNotFound = errors.New("not found")

// ErrLocked is returned when a mutation targets a track locked by someone
// else.
var ErrLocked = errors.New("track locked by another collaborator")

// TargetKind tells whether an effect upsert addresses a track or the master
// bus.
type TargetKind string

const (
	TargetTrack  TargetKind = "track"
	TargetMaster TargetKind = "master"
)

// Store reads and writes rooms in Redis.
type Store struct {
	rdb redis.UniversalClient
	log zerolog.Logger
}

// New wraps a connected Redis client.
func New(client redis.UniversalClient, logger zerolog.Logger) *Store {
	return &Store{rdb: client, log: logger}
}

func sessionKey(roomID string) string { return "looproom:room:" + roomID + ":session" }

func lockKey(roomID, trackID string) string {
	return "looproom:room:" + roomID + ":lock:" + trackID
}

// SaveSession writes the whole session of a room.
func (s *Store) SaveSession(ctx context.Context, roomID string, session *looproom.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	body, err := yaml.Marshal(session)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(roomID), body, 0).Err()
}

// LoadSession reads the session of a room.
func (s *Store) LoadSession(ctx context.Context, roomID string) (looproom.Session, error) {
	body, err := s.rdb.Get(ctx, sessionKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return looproom.Session{}, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return looproom.Session{}, err
	}
	var session looproom.Session
	if err := yaml.Unmarshal(body, &session); err != nil {
		return looproom.Session{}, fmt.Errorf("room %s: corrupt session: %w", roomID, err)
	}
	return session, nil
}

// DeleteRoom removes the room's session.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, sessionKey(roomID)).Err()
}

// update applies fn to the room's session inside an optimistic transaction:
// concurrent writers retry instead of overwriting each other.
func (s *Store) update(ctx context.Context, roomID string, fn func(*looproom.Session) error) error {
	key := sessionKey(roomID)
	txn := func(tx *redis.Tx) error {
		body, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		var session looproom.Session
		if err := yaml.Unmarshal(body, &session); err != nil {
			return fmt.Errorf("room %s: corrupt session: %w", roomID, err)
		}
		if err := fn(&session); err != nil {
			return err
		}
		if err := session.Validate(); err != nil {
			return fmt.Errorf("invalid session after update: %w", err)
		}
		out, err := yaml.Marshal(&session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}
	for i := 0; i < 16; i++ {
		err := s.rdb.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.log.Debug().Str("room", roomID).Msg("session update contention, retrying")
	}
	return errors.New("session update kept conflicting, giving up")
}

// UpsertTrack adds a track or replaces it by ID, keeping its clips when the
// incoming track carries none.
func (s *Store) UpsertTrack(ctx context.Context, roomID string, track looproom.Track) error {
	return s.update(ctx, roomID, func(session *looproom.Session) error {
		for i := range session.Tracks {
			if session.Tracks[i].ID == track.ID {
				if track.Clips == nil {
					track.Clips = session.Tracks[i].Clips
				}
				session.Tracks[i] = track
				return nil
			}
		}
		session.Tracks = append(session.Tracks, track)
		return nil
	})
}

// DeleteTrack removes a track and its clips.
func (s *Store) DeleteTrack(ctx context.Context, roomID, trackID string) error {
	return s.update(ctx, roomID, func(session *looproom.Session) error {
		for i := range session.Tracks {
			if session.Tracks[i].ID == trackID {
				session.Tracks = append(session.Tracks[:i], session.Tracks[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	})
}

// UpsertClip adds a clip to a track or replaces it by ID, enforcing the
// track's kind and overlap rules.
func (s *Store) UpsertClip(ctx context.Context, roomID, trackID string, clip looproom.Clip) error {
	return s.update(ctx, roomID, func(session *looproom.Session) error {
		track := session.Track(trackID)
		if track == nil {
			return fmt.Errorf("track %s: %w", trackID, ErrNotFound)
		}
		if err := track.CanPlace(&clip); err != nil {
			return err
		}
		for i := range track.Clips {
			if track.Clips[i].ID == clip.ID {
				track.Clips[i] = clip
				return nil
			}
		}
		track.Clips = append(track.Clips, clip)
		return nil
	})
}

// DeleteClip removes a clip wherever it lives.
func (s *Store) DeleteClip(ctx context.Context, roomID, clipID string) error {
	return s.update(ctx, roomID, func(session *looproom.Session) error {
		for i := range session.Tracks {
			clips := session.Tracks[i].Clips
			for j := range clips {
				if clips[j].ID == clipID {
					session.Tracks[i].Clips = append(clips[:j], clips[j+1:]...)
					return nil
				}
			}
		}
		return fmt.Errorf("clip %s: %w", clipID, ErrNotFound)
	})
}

// SetLoop replaces the room's loop region.
func (s *Store) SetLoop(ctx context.Context, roomID string, loop looproom.LoopRegion) error {
	return s.update(ctx, roomID, func(session *looproom.Session) error {
		session.Loop = loop
		return nil
	})
}

// UpsertEffect sets or removes one effect slot of a track or the master
// bus. A nil params removes the effect; there is at most one effect per
// (target, type) pair, so setting always replaces.
func (s *Store) UpsertEffect(ctx context.Context, roomID string, target TargetKind, targetID string, effectType looproom.EffectType, params any) error {
	return s.update(ctx, roomID, func(session *looproom.Session) error {
		switch target {
		case TargetMaster:
			return applyMasterEffect(session, effectType, params)
		case TargetTrack:
			track := session.Track(targetID)
			if track == nil {
				return fmt.Errorf("track %s: %w", targetID, ErrNotFound)
			}
			return applyTrackEffect(track, effectType, params)
		default:
			return fmt.Errorf("unknown effect target %q", target)
		}
	})
}

func applyMasterEffect(session *looproom.Session, effectType looproom.EffectType, params any) error {
	switch effectType {
	case looproom.EffectEq:
		return assign(&session.MasterEq, params)
	case looproom.EffectReverb:
		return assign(&session.MasterReverb, params)
	default:
		return fmt.Errorf("master bus has no %q slot", effectType)
	}
}

func applyTrackEffect(track *looproom.Track, effectType looproom.EffectType, params any) error {
	switch effectType {
	case looproom.EffectEq:
		return assign(&track.Eq, params)
	case looproom.EffectReverb:
		return assign(&track.Reverb, params)
	case looproom.EffectSynth:
		return assign(&track.Synth, params)
	case looproom.EffectArpeggiator:
		return assign(&track.Arpeggiator, params)
	default:
		return fmt.Errorf("unknown effect type %q", effectType)
	}
}

func assign[T any](slot **T, params any) error {
	if params == nil {
		*slot = nil
		return nil
	}
	value, ok := params.(*T)
	if !ok {
		return fmt.Errorf("effect params have type %T", params)
	}
	*slot = value
	return nil
}

// AcquireTrackLock takes the edit lock of a track for the given owner. The
// key carries the stale timeout as its TTL, so a crashed collaborator's
// lock disappears without anyone clearing it. Re-acquiring one's own lock
// refreshes the TTL.
func (s *Store) AcquireTrackLock(ctx context.Context, roomID, trackID, owner string) (bool, error) {
	key := lockKey(roomID, trackID)
	ok, err := s.rdb.SetNX(ctx, key, owner, looproom.StaleLockTimeout).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	holder, err := s.rdb.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	if holder == owner {
		return true, s.rdb.Expire(ctx, key, looproom.StaleLockTimeout).Err()
	}
	return false, nil
}

// releaseScript deletes the lock only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ReleaseTrackLock drops the edit lock if the owner still holds it.
func (s *Store) ReleaseTrackLock(ctx context.Context, roomID, trackID, owner string) error {
	return releaseScript.Run(ctx, s.rdb, []string{lockKey(roomID, trackID)}, owner).Err()
}

// TrackLockOwner returns who holds the track's edit lock, or "" when
// unlocked.
func (s *Store) TrackLockOwner(ctx context.Context, roomID, trackID string) (string, error) {
	owner, err := s.rdb.Get(ctx, lockKey(roomID, trackID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return owner, err
}
