package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
)

func newTestStory() *models.Story {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Story{
		ID: uuid.NewString(),
		Request: models.StoryRequest{
			ChildName:         "Aya",
			ChildAge:          5,
			Theme:             "character-courage",
			Language:          models.LanguageEN,
			IllustrationStyle: "watercolor",
			PageCount:         3,
		},
		Status:    models.StatusGeneratingStory,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// runRepositoryContract проверяет поведение, общее для всех реализаций хранилища.
func runRepositoryContract(t *testing.T, repo interfaces.StoryRepository) {
	ctx := context.Background()

	t.Run("get missing story", func(t *testing.T) {
		_, err := repo.GetStory(ctx, uuid.NewString())
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("update missing story", func(t *testing.T) {
		_, err := repo.UpdateStory(ctx, uuid.NewString(), models.StoryUpdate{Title: models.StringPtr("x")})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("create and get", func(t *testing.T) {
		story := newTestStory()
		require.NoError(t, repo.CreateStory(ctx, story))

		got, err := repo.GetStory(ctx, story.ID)
		require.NoError(t, err)
		assert.Equal(t, story.ID, got.ID)
		assert.Equal(t, story.Request, got.Request)
		assert.Equal(t, models.StatusGeneratingStory, got.Status)
		assert.Nil(t, got.Content)
		assert.Empty(t, got.Images)
	})

	t.Run("partial updates merge", func(t *testing.T) {
		story := newTestStory()
		require.NoError(t, repo.CreateStory(ctx, story))

		content := &models.StoryContent{
			Title: "The Brave Fox",
			Pages: []models.Page{{Text: "p1", ImagePrompt: "fox"}, {Text: "p2"}, {Text: "p3"}},
			Moral: "Be brave",
		}
		_, err := repo.UpdateStory(ctx, story.ID, models.StoryUpdate{
			Status:  models.StatusPtr(models.StatusGeneratingImages),
			Title:   models.StringPtr(content.Title),
			Content: content,
		})
		require.NoError(t, err)

		_, err = repo.UpdateStory(ctx, story.ID, models.StoryUpdate{
			Images:             []string{"img0"},
			CharacterReference: &models.CharacterReference{ImageURL: "img0", Seed: 42, Data: []byte("raw")},
		})
		require.NoError(t, err)

		got, err := repo.GetStory(ctx, story.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusGeneratingImages, got.Status)
		assert.Equal(t, "The Brave Fox", got.Title)
		require.NotNil(t, got.Content)
		assert.Len(t, got.Content.Pages, 3)
		assert.Equal(t, []string{"img0"}, got.Images)
		require.NotNil(t, got.CharacterReference)
		assert.Equal(t, int64(42), got.CharacterReference.Seed)
		assert.Nil(t, got.CharacterReference.Data)

		_, err = repo.UpdateStory(ctx, story.ID, models.StoryUpdate{
			CharacterReference: &models.CharacterReference{ImageURL: "img1"},
		})
		assert.ErrorIs(t, err, models.ErrReferenceAlreadySet)

		_, err = repo.UpdateStory(ctx, story.ID, models.StoryUpdate{Status: models.StatusPtr(models.StatusGeneratingStory)})
		assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)

		completedAt := time.Now().UTC().Truncate(time.Millisecond)
		final, err := repo.UpdateStory(ctx, story.ID, models.StoryUpdate{
			Status:      models.StatusPtr(models.StatusComplete),
			Images:      []string{"img0", "img1", "img2"},
			CompletedAt: &completedAt,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusComplete, final.Status)
		assert.Len(t, final.Images, 3)

		got, err = repo.GetStory(ctx, story.ID)
		require.NoError(t, err)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, completedAt.Equal(*got.CompletedAt))
		assert.Equal(t, "img0", got.CharacterReference.ImageURL)
	})

	t.Run("delete", func(t *testing.T) {
		story := newTestStory()
		require.NoError(t, repo.CreateStory(ctx, story))

		deleted, err := repo.DeleteStory(ctx, story.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.DeleteStory(ctx, story.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = repo.GetStory(ctx, story.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("claim", func(t *testing.T) {
		story := newTestStory()
		require.NoError(t, repo.CreateStory(ctx, story))

		ok, err := repo.ClaimStory(ctx, story.ID, "worker-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ClaimStory(ctx, story.ID, "worker-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "live claim must not be taken over")

		ok, err = repo.ClaimStory(ctx, story.ID, "worker-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "owner may refresh its claim")
	})
}
