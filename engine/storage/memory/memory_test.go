package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synthframe/engine/engine/core"
	"github.com/synthframe/engine/engine/storage"
)

func TestStore_IssueLifecycle(t *testing.T) {
	t.Run("Should create, update and search an issue", func(t *testing.T) {
		s := New()
		ctx := context.Background()

		issue, err := s.CreateIssue(ctx, core.NewInput(map[string]any{"title": "login broken"}))
		require.NoError(t, err)
		require.NotEmpty(t, issue.ID)

		got, err := s.GetIssue(ctx, issue.ID)
		require.NoError(t, err)
		assert.Equal(t, "login broken", got.Fields["title"])

		updated, err := s.UpdateIssue(ctx, issue.ID, core.NewInput(map[string]any{"status": "open"}))
		require.NoError(t, err)
		assert.Equal(t, "login broken", updated.Fields["title"])
		assert.Equal(t, "open", updated.Fields["status"])

		found, err := s.SearchIssues(ctx, storage.Query{Text: "login"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, issue.ID, found[0].ID)
	})

	t.Run("Should error getting a missing issue", func(t *testing.T) {
		s := New()
		_, err := s.GetIssue(context.Background(), core.MustNewID())
		require.Error(t, err)
	})
}

func TestStore_StateDocument(t *testing.T) {
	t.Run("Should report no state document before any write", func(t *testing.T) {
		s := New()
		_, ok, err := s.GetStateDocument(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should persist and return the latest state document", func(t *testing.T) {
		s := New()
		ctx := context.Background()
		require.NoError(t, s.UpdateStateDocument(ctx, "X"))
		require.NoError(t, s.UpdateStateDocument(ctx, "X Y"))
		text, ok, err := s.GetStateDocument(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "X Y", text)
	})
}

func TestStore_Schedules(t *testing.T) {
	t.Run("Should insert, update and filter schedules by status and dedupe key", func(t *testing.T) {
		s := New()
		ctx := context.Background()

		rec, err := s.InsertSchedule(ctx, storage.ScheduleRecord{
			OriginalRequest: "every minute",
			Status:          "active",
			DedupeKey:       "daily-report",
		})
		require.NoError(t, err)

		rec.Status = "completed"
		_, err = s.UpdateSchedule(ctx, rec.ID, *rec)
		require.NoError(t, err)

		active, err := s.SearchSchedules(ctx, storage.ScheduleFilter{Status: "active"})
		require.NoError(t, err)
		assert.Empty(t, active)

		completed, err := s.SearchSchedules(ctx, storage.ScheduleFilter{DedupeKey: "daily-report"})
		require.NoError(t, err)
		require.Len(t, completed, 1)
		assert.Equal(t, "completed", completed[0].Status)
	})
}
