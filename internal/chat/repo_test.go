package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestRepo_SetContextVersionCheck(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	conv := &Conversation{ConversationID: "01TESTCONVERSATION00000000", UserID: 1, Title: "t"}
	require.NoError(t, repo.CreateConversation(ctx, conv))

	require.NoError(t, repo.SetContext(ctx, conv.ConversationID, 0, `{"messageCount":1}`, 10))

	// a writer that read version 0 lost the race
	err := repo.SetContext(ctx, conv.ConversationID, 0, `{"messageCount":1}`, 12)
	assert.ErrorIs(t, err, ErrContextConflict)

	data, version, err := repo.GetContext(ctx, conv.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, `{"messageCount":1}`, data)
	assert.Equal(t, int64(1), version)

	got, err := repo.GetConversation(ctx, conv.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Progress)

	err = repo.SetContext(ctx, "01MISSING00000000000000000", 0, "{}", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepo_HistoryOrderAndPaging(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	cid := "01TESTCONVERSATION00000001"

	// identical timestamps fall back to insertion order
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"a", "b", "c", "d"} {
		role := RoleUser
		if i%2 == 1 {
			role = RoleModel
		}
		require.NoError(t, repo.AppendMessage(ctx, &Message{
			ConversationID: cid,
			UserID:         1,
			Role:           role,
			Parts:          []*genai.Part{genai.NewPartFromText(text)},
			CreatedAt:      at,
		}))
	}

	all, err := repo.GetHistory(ctx, cid, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].Parts[0].Text)
	assert.Equal(t, "d", all[3].Parts[0].Text)

	recent, err := repo.GetHistory(ctx, cid, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Parts[0].Text)
	assert.Equal(t, "d", recent[1].Parts[0].Text)

	page, err := repo.ListMessages(ctx, cid, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].Parts[0].Text)

	older, err := repo.ListMessages(ctx, cid, 10, page[1].ID)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "b", older[0].Parts[0].Text)
}

func TestRepo_InlineDataSurvivesStorage(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	cid := "01TESTCONVERSATION00000002"

	img := []byte{0xff, 0xd8, 0xff, 0x00, 0x01}
	require.NoError(t, repo.AppendMessage(ctx, &Message{
		ConversationID: cid,
		UserID:         1,
		Role:           RoleUser,
		Parts:          []*genai.Part{{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: img}}},
	}))

	history, err := repo.GetHistory(ctx, cid, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Parts[0].InlineData)
	assert.Equal(t, img, history[0].Parts[0].InlineData.Data)
	assert.Equal(t, "image/jpeg", history[0].Content().Parts[0].InlineData.MIMEType)
}

func TestRepo_JobLifecycle(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	job := &TurnJob{ID: "01TESTJOB00000000000000000", UserID: 1, ConversationID: "c", Status: JobQueued}
	require.NoError(t, repo.CreateJob(ctx, job))

	claimed, err := repo.MarkJobRunning(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.MarkJobRunning(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, repo.MarkJobSucceeded(ctx, job.ID, 42, 55))
	got, err := repo.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, got.Status)
	assert.Equal(t, uint64(42), *got.ResultMessageID)
	assert.Equal(t, 55, *got.Progress)

	_, err = repo.GetJobByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
