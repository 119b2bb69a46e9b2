// Package unitcache implements the cached unit scorer (spec §4.4): a
// handle-keyed, shard-striped cache of aggregate unit scores, backed by the
// trial and reward logs for misses and invalidated precisely on new trial
// or reward events.
package unitcache

import (
	"context"
	"sync"

	"github.com/trane-project/trane/internal/domain"
	"github.com/trane-project/trane/internal/graph"
	"github.com/trane-project/trane/internal/infra/dsa"
	"github.com/trane-project/trane/internal/scoring"
)

// Cache computes and caches unit scores, combining exercise scores (for a
// lesson's exercises) or child-lesson scores (for a course) with propagated
// reward adjustments. Reads hold a shard's read lock only long enough to
// copy out a cached entry; a miss is recomputed outside any lock and
// written back under the shard's write lock (spec §5: "no lock held across
// I/O").
type Cache struct {
	g        *graph.Graph
	trials   domain.TrialLog
	rewards  domain.RewardLog
	exercise *scoring.ExerciseScorer
	reward   *scoring.RewardScorer

	ring   *dsa.ShardRing
	shards []shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[domain.UnitHandle]domain.CachedUnitScore
}

// Config configures a Cache.
type Config struct {
	Graph         *graph.Graph
	Trials        domain.TrialLog
	Rewards       domain.RewardLog
	ExerciseScore *scoring.ExerciseScorer
	RewardScore   *scoring.RewardScorer
	// NumShards is the number of independent lock-striped shards backing
	// the cache; defaults to 16.
	NumShards int
}

// New constructs a Cache from cfg, filling in scorer defaults if nil.
func New(cfg Config) *Cache {
	if cfg.ExerciseScore == nil {
		cfg.ExerciseScore = scoring.NewExerciseScorer()
	}
	if cfg.RewardScore == nil {
		cfg.RewardScore = scoring.NewRewardScorer()
	}
	if cfg.NumShards <= 0 {
		cfg.NumShards = 16
	}
	shards := make([]shard, cfg.NumShards)
	for i := range shards {
		shards[i].entries = make(map[domain.UnitHandle]domain.CachedUnitScore)
	}
	return &Cache{
		g:        cfg.Graph,
		trials:   cfg.Trials,
		rewards:  cfg.Rewards,
		exercise: cfg.ExerciseScore,
		reward:   cfg.RewardScore,
		ring:     dsa.NewShardRing(cfg.NumShards),
		shards:   shards,
	}
}

func (c *Cache) shardFor(h domain.UnitHandle) *shard {
	return &c.shards[c.ring.Shard(h)]
}

// Score returns a unit's aggregate score, recomputing and caching on a
// miss. Returns (score, known). For a lesson with no exercise trial
// history, or a course with no scored lesson, known is false (spec §4.4
// "unknown, treated as unmastered").
func (c *Cache) Score(ctx context.Context, h domain.UnitHandle) (float32, bool, error) {
	sh := c.shardFor(h)

	sh.mu.RLock()
	if entry, ok := sh.entries[h]; ok {
		sh.mu.RUnlock()
		return entry.Score, true, nil
	}
	sh.mu.RUnlock()

	score, known, err := c.compute(ctx, h)
	if err != nil {
		return 0, false, err
	}
	if !known {
		return 0, false, nil
	}

	sh.mu.Lock()
	sh.entries[h] = domain.CachedUnitScore{Score: score, NumTrials: 0}
	sh.mu.Unlock()

	return score, true, nil
}

// compute recomputes a unit's score from the logs, uncached, per spec §4.4.
func (c *Cache) compute(ctx context.Context, h domain.UnitHandle) (float32, bool, error) {
	u := c.g.Unit(h)
	if u == nil {
		return 0, false, domain.NewError(domain.KindGraphError, domain.ErrUnknownUnit)
	}
	if c.g.IsImplicitMastered(h) {
		return 5.0, true, nil
	}

	switch u.Kind {
	case domain.KindExercise:
		return c.scoreExercise(ctx, h, u)
	case domain.KindLesson:
		return c.scoreAggregate(ctx, h, c.g.GetExercises(h))
	case domain.KindCourse:
		lessons := c.g.GetLessons(h)
		known := make([]domain.UnitHandle, 0, len(lessons))
		for _, l := range lessons {
			if _, ok, err := c.Score(ctx, l); err != nil {
				return 0, false, err
			} else if ok {
				known = append(known, l)
			}
		}
		return c.scoreAggregateFromHandles(ctx, h, known)
	default:
		return 0, false, domain.NewError(domain.KindInternal, domain.ErrInternal)
	}
}

func (c *Cache) scoreExercise(ctx context.Context, h domain.UnitHandle, u *domain.Unit) (float32, bool, error) {
	trials, err := c.trials.Recent(ctx, h, c.exercise.NumTrials)
	if err != nil {
		return 0, false, domain.NewError(domain.KindStorage, err)
	}
	if len(trials) == 0 {
		return 0, false, nil
	}
	return float32(c.exercise.Score(u.ExerciseType, trials)), true, nil
}

// scoreAggregate computes a lesson's aggregate score from its exercises:
// mean of exercise scores that have any trial, plus the lesson's own
// reward delta, clamped to [0,5].
func (c *Cache) scoreAggregate(ctx context.Context, h domain.UnitHandle, children []domain.UnitHandle) (float32, bool, error) {
	var sum float32
	var n int
	for _, ex := range children {
		s, known, err := c.Score(ctx, ex)
		if err != nil {
			return 0, false, err
		}
		if known {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	mean := sum / float32(n)
	return c.applyReward(ctx, h, mean)
}

// scoreAggregateFromHandles computes a course's aggregate from its
// already-scored lessons.
func (c *Cache) scoreAggregateFromHandles(ctx context.Context, h domain.UnitHandle, knownLessons []domain.UnitHandle) (float32, bool, error) {
	if len(knownLessons) == 0 {
		return 0, false, nil
	}
	var sum float32
	for _, l := range knownLessons {
		s, _, err := c.Score(ctx, l)
		if err != nil {
			return 0, false, err
		}
		sum += s
	}
	mean := sum / float32(len(knownLessons))
	return c.applyReward(ctx, h, mean)
}

func (c *Cache) applyReward(ctx context.Context, h domain.UnitHandle, base float32) (float32, bool, error) {
	events, err := c.rewards.Recent(ctx, h, c.reward.NumRewards)
	if err != nil {
		return 0, false, domain.NewError(domain.KindStorage, err)
	}
	delta := c.reward.Score(events)
	score := base + delta
	if score < 0 {
		score = 0
	}
	if score > 5 {
		score = 5
	}
	return score, true, nil
}

// InvalidateTrial invalidates the caches affected by a new trial on
// exercise: the exercise itself, its parent lesson, and its parent course
// (spec §4.4).
func (c *Cache) InvalidateTrial(exercise domain.UnitHandle) {
	u := c.g.Unit(exercise)
	if u == nil {
		return
	}
	c.invalidate(exercise)
	if u.ParentLesson != domain.InvalidHandle {
		c.invalidate(u.ParentLesson)
		if lesson := c.g.Unit(u.ParentLesson); lesson != nil && lesson.ParentCourse != domain.InvalidHandle {
			c.invalidate(lesson.ParentCourse)
		}
	}
}

// InvalidateReward invalidates the cache entry for unit (spec §4.4).
func (c *Cache) InvalidateReward(unit domain.UnitHandle) {
	c.invalidate(unit)
}

func (c *Cache) invalidate(h domain.UnitHandle) {
	sh := c.shardFor(h)
	sh.mu.Lock()
	delete(sh.entries, h)
	sh.mu.Unlock()
}

// AllValidExercisesHaveScores reports whether every exercise in unit's
// subtree has at least one recorded trial; used by superseding gating
// (spec §4.1, §4.4).
func (c *Cache) AllValidExercisesHaveScores(ctx context.Context, unit domain.UnitHandle) (bool, error) {
	for _, ex := range c.g.SubtreeExercises(unit) {
		_, known, err := c.Score(ctx, ex)
		if err != nil {
			return false, err
		}
		if !known {
			return false, nil
		}
	}
	return true, nil
}
