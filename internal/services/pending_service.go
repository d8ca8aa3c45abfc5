package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"linaro/webforms/internal/config"
	"linaro/webforms/internal/db"
	"linaro/webforms/internal/models"
	"linaro/webforms/internal/utils"
)

var (
	// ErrTokenNotFound means no pending submission exists for a token: never
	// issued, expired away by cleanup, or already consumed and deleted.
	ErrTokenNotFound = errors.New("verification token not found")

	// ErrAlreadyVerified means the one-shot verification already happened for
	// this token; a second click must not raise a second ticket.
	ErrAlreadyVerified = errors.New("submission already verified")
)

// IPendingService manages submissions parked until their owner clicks the
// emailed verification link.
type IPendingService interface {
	Create(ctx context.Context, submission models.Submission, sourceOrigin string) (*models.PendingSubmission, error)
	FindByToken(ctx context.Context, token string) (*models.PendingSubmission, error)
	MarkVerified(ctx context.Context, token string) (*models.PendingSubmission, error)
	Delete(ctx context.Context, token string) error
	DeleteStaleUnverified(ctx context.Context, olderThan time.Duration) (int64, error)
}

const pendingSubmissionsCollection = "pending_submissions"

// pendingService implements IPendingService on Mongo.
type pendingService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewPendingService creates a new PendingService.
func NewPendingService(database *mongo.Database, cfg *config.Config) IPendingService {
	return &pendingService{db: database, cfg: cfg}
}

// Create stores a validated submission under a fresh random token. Token
// collisions are vanishingly rare but cheap to retry, so the insert goes
// through the duplicate-key retry helper with a new token per attempt.
func (s *pendingService) Create(ctx context.Context, submission models.Submission, sourceOrigin string) (*models.PendingSubmission, error) {
	collection := s.db.Collection(pendingSubmissionsCollection)

	var pending *models.PendingSubmission
	err := db.Try(func() error {
		pending = &models.PendingSubmission{
			Token:        utils.NewToken(),
			Submission:   submission,
			SourceOrigin: sourceOrigin,
			CreatedAt:    time.Now().UTC(),
		}
		_, insertErr := collection.InsertOne(ctx, pending)
		return insertErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store pending submission: %w", err)
	}
	return pending, nil
}

// FindByToken retrieves a pending submission regardless of its verification
// state.
func (s *pendingService) FindByToken(ctx context.Context, token string) (*models.PendingSubmission, error) {
	collection := s.db.Collection(pendingSubmissionsCollection)

	var pending models.PendingSubmission
	err := collection.FindOne(ctx, bson.M{"_id": token}).Decode(&pending)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("database error finding pending submission: %w", err)
	}
	return &pending, nil
}

// MarkVerified flips a pending submission to verified exactly once. The
// update matches only while the verified field is absent, so concurrent
// clicks on the same link race on a single conditional write and all but one
// lose. Losers get ErrAlreadyVerified; unknown tokens get ErrTokenNotFound.
func (s *pendingService) MarkVerified(ctx context.Context, token string) (*models.PendingSubmission, error) {
	collection := s.db.Collection(pendingSubmissionsCollection)

	filter := bson.M{
		"_id":      token,
		"verified": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{"verified": models.VerifiedMarker}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, fmt.Errorf("failed to mark submission %s verified: %w", token, err)
	}

	if result.MatchedCount == 0 {
		// Either the token never existed or someone verified it first.
		if _, findErr := s.FindByToken(ctx, token); findErr != nil {
			return nil, findErr
		}
		return nil, ErrAlreadyVerified
	}

	return s.FindByToken(ctx, token)
}

// Delete removes a pending submission. Called after the ticket is raised, and
// when verification email delivery fails so the orphaned record cannot be
// verified later.
func (s *pendingService) Delete(ctx context.Context, token string) error {
	collection := s.db.Collection(pendingSubmissionsCollection)
	if _, err := collection.DeleteOne(ctx, bson.M{"_id": token}); err != nil {
		return fmt.Errorf("failed to delete pending submission %s: %w", token, err)
	}
	return nil
}

// DeleteStaleUnverified removes unverified submissions older than the given
// age. Runs from the periodic cleanup task.
func (s *pendingService) DeleteStaleUnverified(ctx context.Context, olderThan time.Duration) (int64, error) {
	collection := s.db.Collection(pendingSubmissionsCollection)

	cutoff := time.Now().UTC().Add(-olderThan)
	filter := bson.M{
		"verified":   bson.M{"$exists": false},
		"created_at": bson.M{"$lt": cutoff},
	}

	result, err := collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale pending submissions: %w", err)
	}
	return result.DeletedCount, nil
}
