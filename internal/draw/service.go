package draw

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/classroom"
)

const (
	recentKeyPrefix  = "draw:"
	recentKeySuffix  = ":recent"
	defaultRecentTTL = 2 * time.Hour
)

// ErrNoCandidates indicates that the class has no students to draw from.
var ErrNoCandidates = errors.New("draw: no candidates")

// ServiceConfig describes the dependencies of the lucky-draw service.
type ServiceConfig struct {
	Redis     *redis.Client
	RecentTTL time.Duration
	Rand      *rand.Rand
	Logger    *zap.Logger
}

// Service picks random students for a class, excluding recent winners so the
// same student is not drawn twice in a row. The exclusion set lives in redis
// with a TTL; without a redis client every draw is over the full roster.
type Service struct {
	redis     *redis.Client
	recentTTL time.Duration
	rand      *rand.Rand
	logger    *zap.Logger
}

// NewService constructs the draw service. A nil redis client is allowed and
// disables recent-winner exclusion.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.RecentTTL
	if ttl <= 0 {
		ttl = defaultRecentTTL
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{redis: cfg.Redis, recentTTL: ttl, rand: rng, logger: logger}
}

// Pick draws one student from the roster. Students in the recent-winner set
// are skipped; once everyone has won, the set is cleared and the whole roster
// is eligible again. Redis failures degrade to an exclusion-free draw rather
// than failing the draw.
func (s *Service) Pick(ctx context.Context, classID string, students []classroom.Student) (classroom.Student, error) {
	if len(students) == 0 {
		return classroom.Student{}, ErrNoCandidates
	}

	excluded := s.recentWinners(ctx, classID)
	winner, exhausted := pickCandidate(students, excluded, s.rand)
	if exhausted {
		s.clearRecent(ctx, classID)
	}
	s.recordWinner(ctx, classID, winner)
	return winner, nil
}

// pickCandidate selects a random student outside the excluded set. When every
// student is excluded it falls back to the full roster and reports that the
// exclusion set is exhausted.
func pickCandidate(students []classroom.Student, excluded map[string]bool, rng *rand.Rand) (classroom.Student, bool) {
	eligible := make([]classroom.Student, 0, len(students))
	for _, student := range students {
		if !excluded[student.ID.String()] {
			eligible = append(eligible, student)
		}
	}
	if len(eligible) == 0 {
		return students[rng.Intn(len(students))], true
	}
	return eligible[rng.Intn(len(eligible))], false
}

func (s *Service) recentWinners(ctx context.Context, classID string) map[string]bool {
	if s.redis == nil {
		return nil
	}
	members, err := s.redis.SMembers(ctx, recentKey(classID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn("recent winners unavailable, drawing from full roster",
			zap.String("class_id", classID),
			zap.Error(err))
		return nil
	}
	excluded := make(map[string]bool, len(members))
	for _, member := range members {
		excluded[member] = true
	}
	return excluded
}

func (s *Service) recordWinner(ctx context.Context, classID string, winner classroom.Student) {
	if s.redis == nil || winner.ID.IsZero() {
		return
	}
	key := recentKey(classID)
	pipe := s.redis.Pipeline()
	pipe.SAdd(ctx, key, winner.ID.String())
	pipe.Expire(ctx, key, s.recentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("failed to record draw winner",
			zap.String("class_id", classID),
			zap.String("student_id", winner.ID.String()),
			zap.Error(err))
	}
}

func (s *Service) clearRecent(ctx context.Context, classID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, recentKey(classID)).Err(); err != nil {
		s.logger.Warn("failed to reset draw exclusion set",
			zap.String("class_id", classID),
			zap.Error(err))
	}
}

func recentKey(classID string) string {
	return fmt.Sprintf("%s%s%s", recentKeyPrefix, classID, recentKeySuffix)
}
