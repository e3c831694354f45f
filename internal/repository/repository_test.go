package repository_test

import (
	"context"
	"testing"

	"github.com/mbeoliero/tradechat/internal/entity"
	"github.com/mbeoliero/tradechat/internal/repository"
	"github.com/mbeoliero/tradechat/internal/testutil"
	"github.com/mbeoliero/tradechat/pkg/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newConversation(t *testing.T, repos *repository.Repositories, buyer, seller string) *entity.Conversation {
	t.Helper()
	conv := &entity.Conversation{
		PairKey:  entity.GenPairKey(buyer, seller),
		BuyerId:  buyer,
		SellerId: seller,
		Status:   constant.ConvStatusOpen,
	}
	created, err := repos.Conversation.CreateIfAbsent(context.Background(), conv)
	require.NoError(t, err)
	require.True(t, created)
	return conv
}

func appendMessage(t *testing.T, repos *repository.Repositories, conv *entity.Conversation, sender string, ts int64) *entity.Message {
	t.Helper()
	msg := &entity.Message{
		ConversationId: conv.Id,
		SenderId:       sender,
		ReceiverId:     conv.Counterparty(sender),
		Body:           "hello",
		Kind:           constant.KindText,
		CreatedAt:      ts,
	}
	err := repos.Transaction(context.Background(), func(tx *gorm.DB) error {
		return repos.Message.Create(context.Background(), tx, msg)
	})
	require.NoError(t, err)
	return msg
}

func TestCreateIfAbsentKeepsOneRowPerPair(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewTestRepos(t)

	first := newConversation(t, repos, "b___1", "s___1")

	dup := &entity.Conversation{PairKey: entity.GenPairKey("s___1", "b___1"), BuyerId: "b___1", SellerId: "s___1", Status: constant.ConvStatusOpen}
	created, err := repos.Conversation.CreateIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	found, err := repos.Conversation.GetByPairKey(ctx, entity.GenPairKey("b___1", "s___1"))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.Id, found.Id)

	var count int64
	require.NoError(t, repos.DB.Model(&entity.Conversation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	missing, err := repos.Conversation.GetById(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetByIdForUpdateInsideTransaction(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewTestRepos(t)
	conv := newConversation(t, repos, "b___1", "s___1")

	err := repos.Transaction(ctx, func(tx *gorm.DB) error {
		locked, err := repos.Conversation.GetByIdForUpdate(ctx, tx, conv.Id)
		require.NoError(t, err)
		require.NotNil(t, locked)
		return repos.Conversation.UpdateWithTx(ctx, tx, conv.Id, map[string]interface{}{"last_message_at": int64(42)})
	})
	require.NoError(t, err)

	got, err := repos.Conversation.GetById(ctx, conv.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.LastMessageAt)
}

func TestListSinceOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewTestRepos(t)
	conv := newConversation(t, repos, "b___1", "s___1")
	other := newConversation(t, repos, "b___2", "s___1")

	m1 := appendMessage(t, repos, conv, "b___1", 10)
	m2 := appendMessage(t, repos, conv, "s___1", 12)
	appendMessage(t, repos, other, "b___2", 11)
	m3 := appendMessage(t, repos, conv, "b___1", 15)

	all, err := repos.Message.ListSince(ctx, conv.Id, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{m1.Id, m2.Id, m3.Id}, []int64{all[0].Id, all[1].Id, all[2].Id})

	after, err := repos.Message.ListSince(ctx, conv.Id, 10, 10)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, m2.Id, after[0].Id)

	page, err := repos.Message.ListSince(ctx, conv.Id, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestMarkReadAndCounts(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewTestRepos(t)
	conv := newConversation(t, repos, "b___1", "s___1")
	other := newConversation(t, repos, "b___2", "s___1")

	m1 := appendMessage(t, repos, conv, "b___1", 1)
	m2 := appendMessage(t, repos, conv, "b___1", 2)
	own := appendMessage(t, repos, conv, "s___1", 3)
	appendMessage(t, repos, other, "b___2", 4)

	total, err := repos.Message.CountUnread(ctx, "s___1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	perConv, err := repos.Message.CountUnreadByConversations(ctx, "s___1", []int64{conv.Id, other.Id})
	require.NoError(t, err)
	assert.Equal(t, int64(2), perConv[conv.Id])
	assert.Equal(t, int64(1), perConv[other.Id])

	// a message the seller sent is not theirs to mark
	flipped, err := repos.Message.MarkRead(ctx, conv.Id, "s___1", []int64{m1.Id, own.Id})
	require.NoError(t, err)
	assert.Equal(t, []int64{m1.Id}, flipped)

	flipped, err = repos.Message.MarkRead(ctx, conv.Id, "s___1", nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{m2.Id}, flipped)

	flipped, err = repos.Message.MarkRead(ctx, conv.Id, "s___1", nil)
	require.NoError(t, err)
	assert.Empty(t, flipped)

	total, err = repos.Message.CountUnread(ctx, "s___1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestLatestByConversations(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewTestRepos(t)
	conv := newConversation(t, repos, "b___1", "s___1")
	other := newConversation(t, repos, "b___2", "s___1")
	empty := newConversation(t, repos, "b___3", "s___1")

	appendMessage(t, repos, conv, "b___1", 1)
	last := appendMessage(t, repos, conv, "s___1", 2)
	lastOther := appendMessage(t, repos, other, "b___2", 3)

	latest, err := repos.Message.LatestByConversations(ctx, []int64{conv.Id, other.Id, empty.Id})
	require.NoError(t, err)
	assert.Equal(t, last.Id, latest[conv.Id].Id)
	assert.Equal(t, lastOther.Id, latest[other.Id].Id)
	_, ok := latest[empty.Id]
	assert.False(t, ok)
}

func TestClaimAttachments(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewTestRepos(t)
	conv := newConversation(t, repos, "b___1", "s___1")
	msg := appendMessage(t, repos, conv, "b___1", 1)

	mine := &entity.Attachment{UploaderId: "b___1", Filename: "a.png", StoragePath: "k/a", Size: 10, ContentType: "image/png"}
	theirs := &entity.Attachment{UploaderId: "s___1", Filename: "b.png", StoragePath: "k/b", Size: 10, ContentType: "image/png"}
	require.NoError(t, repos.Attachment.Create(ctx, mine))
	require.NoError(t, repos.Attachment.Create(ctx, theirs))

	err := repos.Transaction(ctx, func(tx *gorm.DB) error {
		return repos.Attachment.ClaimWithTx(ctx, tx, []int64{mine.Id, theirs.Id}, "b___1", msg.Id, 0)
	})
	assert.ErrorIs(t, err, repository.ErrAttachmentUnavailable)

	// rolled back: still pending
	n, err := repos.Attachment.CountPendingByIds(ctx, []int64{mine.Id}, "b___1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = repos.Transaction(ctx, func(tx *gorm.DB) error {
		return repos.Attachment.ClaimWithTx(ctx, tx, []int64{mine.Id}, "b___1", msg.Id, 0)
	})
	require.NoError(t, err)

	got, err := repos.Message.ListSince(ctx, msg.ConversationId, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Attachments, 1)
	assert.Equal(t, "k/a", got[0].Attachments[0].StoragePath)

	n, err = repos.Attachment.CountPendingByIds(ctx, []int64{mine.Id}, "b___1")
	require.NoError(t, err)
	assert.Zero(t, n)

	// a second claim of the same reference fails
	err = repos.Transaction(ctx, func(tx *gorm.DB) error {
		return repos.Attachment.ClaimWithTx(ctx, tx, []int64{mine.Id}, "b___1", msg.Id, 1)
	})
	assert.ErrorIs(t, err, repository.ErrAttachmentUnavailable)
}
