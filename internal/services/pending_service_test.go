package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"linaro/webforms/internal/config"
	"linaro/webforms/internal/models"
	"linaro/webforms/internal/utils"
)

func setupTestDBPending(t *testing.T, dbName string) *mongo.Database {
	return utils.SetupTestDB(t, dbName, pendingSubmissionsCollection)
}

func TestPendingService_RoundTrip(t *testing.T) {
	db := setupTestDBPending(t, "testdb_pending_service_roundtrip")
	svc := NewPendingService(db, &config.Config{})
	ctx := context.Background()

	submission := models.Submission{
		"form_id": "42",
		"email":   "user@example.com",
		"summary": "Need help",
	}

	pending, err := svc.Create(ctx, submission, "https://forms.example.com/contact")
	require.NoError(t, err)
	assert.Len(t, pending.Token, 26)
	assert.Empty(t, pending.Verified)

	fetched, err := svc.FindByToken(ctx, pending.Token)
	require.NoError(t, err)
	assert.Equal(t, "42", fetched.Submission.FormID())
	assert.Equal(t, "user@example.com", fetched.Submission.Email())
	assert.Equal(t, "https://forms.example.com/contact", fetched.SourceOrigin)

	require.NoError(t, svc.Delete(ctx, pending.Token))
	_, err = svc.FindByToken(ctx, pending.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestPendingService_MarkVerifiedOnce(t *testing.T) {
	db := setupTestDBPending(t, "testdb_pending_service_verify_once")
	svc := NewPendingService(db, &config.Config{})
	ctx := context.Background()

	pending, err := svc.Create(ctx, models.Submission{"form_id": "42", "email": "user@example.com"}, "")
	require.NoError(t, err)

	verified, err := svc.MarkVerified(ctx, pending.Token)
	require.NoError(t, err)
	assert.Equal(t, models.VerifiedMarker, verified.Verified)

	// Second attempt must lose the conditional write.
	_, err = svc.MarkVerified(ctx, pending.Token)
	assert.ErrorIs(t, err, ErrAlreadyVerified)

	// Unknown tokens are distinguishable from consumed ones.
	_, err = svc.MarkVerified(ctx, "0123456789ABCDEFGHJKMNPQRS")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestPendingService_DeleteStaleUnverified(t *testing.T) {
	db := setupTestDBPending(t, "testdb_pending_service_cleanup")
	svc := NewPendingService(db, &config.Config{})
	ctx := context.Background()

	stale, err := svc.Create(ctx, models.Submission{"form_id": "42"}, "")
	require.NoError(t, err)
	fresh, err := svc.Create(ctx, models.Submission{"form_id": "42"}, "")
	require.NoError(t, err)
	verified, err := svc.Create(ctx, models.Submission{"form_id": "42"}, "")
	require.NoError(t, err)
	_, err = svc.MarkVerified(ctx, verified.Token)
	require.NoError(t, err)

	// Age the stale and verified records past the cutoff.
	old := time.Now().UTC().Add(-100 * time.Hour)
	for _, token := range []string{stale.Token, verified.Token} {
		_, err = db.Collection(pendingSubmissionsCollection).UpdateOne(ctx,
			map[string]interface{}{"_id": token},
			map[string]interface{}{"$set": map[string]interface{}{"created_at": old}})
		require.NoError(t, err)
	}

	deleted, err := svc.DeleteStaleUnverified(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	// Only the stale unverified record is gone.
	_, err = svc.FindByToken(ctx, stale.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = svc.FindByToken(ctx, fresh.Token)
	assert.NoError(t, err)
	_, err = svc.FindByToken(ctx, verified.Token)
	assert.NoError(t, err)
}
