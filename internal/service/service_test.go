package service

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"sync"
	"testing"

	"github.com/mbeoliero/tradechat/internal/blob"
	"github.com/mbeoliero/tradechat/internal/config"
	"github.com/mbeoliero/tradechat/internal/entity"
	"github.com/mbeoliero/tradechat/internal/repository"
	"github.com/mbeoliero/tradechat/internal/testutil"
	"github.com/mbeoliero/tradechat/pkg/constant"
	"github.com/mbeoliero/tradechat/pkg/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	buyer1  = "b___1"
	buyer2  = "b___2"
	seller1 = "s___1"
	seller2 = "s___2"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type recordingNotifier struct {
	mu       sync.Mutex
	messages []*entity.MessageInfo
	reads    []*entity.ReadReceipt
}

func (n *recordingNotifier) PublishMessage(msg *entity.MessageInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) PublishRead(receipt *entity.ReadReceipt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reads = append(n.reads, receipt)
}

func (n *recordingNotifier) messageCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type staticPresence map[string]bool

func (p staticPresence) OnlineParties(ctx context.Context, partyIds []string) map[string]bool {
	result := make(map[string]bool, len(partyIds))
	for _, id := range partyIds {
		result[id] = p[id]
	}
	return result
}

type testEnv struct {
	repos    *repository.Repositories
	store    *blob.MemoryStore
	notifier *recordingNotifier
	conv     *ConversationService
	att      *AttachmentService
	msg      *MessageService
	read     *ReadService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos := testutil.NewTestRepos(t)
	testutil.SeedParties(t, repos, buyer1, buyer2, seller1, seller2)

	cfg := config.Default()
	store := blob.NewMemoryStore()
	hydrator := NewHydrator(repos, store)
	convService := NewConversationService(repos, hydrator)
	attService := NewAttachmentService(repos, store, &cfg.Attachment, hydrator)
	msgService := NewMessageService(repos, convService, attService, hydrator, &cfg.Message)
	readService := NewReadService(repos, convService)

	notifier := &recordingNotifier{}
	msgService.SetNotifier(notifier)
	readService.SetNotifier(notifier)

	return &testEnv{
		repos:    repos,
		store:    store,
		notifier: notifier,
		conv:     convService,
		att:      attService,
		msg:      msgService,
		read:     readService,
	}
}

func (e *testEnv) send(t *testing.T, sender, recipient, body string) *entity.MessageInfo {
	t.Helper()
	info, err := e.msg.Send(context.Background(), sender, &SendMessageRequest{RecipientId: recipient, Body: body})
	require.NoError(t, err)
	return info
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.repos.DB.Model(model).Count(&n).Error)
	return n
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	return form.File["file"][0]
}

func assertCode(t *testing.T, want *errcode.Error, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, want), "want %v, got %v", want, err)
}

func TestResolveOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid parties", func(t *testing.T) {
		env := newTestEnv(t)
		cases := [][2]string{
			{buyer1, buyer1},
			{buyer1, buyer2},
			{seller1, seller2},
			{buyer1, "s___99"},
			{"", seller1},
			{"someone", seller1},
		}
		for _, c := range cases {
			_, err := env.conv.ResolveOrCreate(ctx, c[0], c[1])
			assertCode(t, errcode.ErrInvalidParties, err)
		}
		assert.Zero(t, env.count(t, &entity.Conversation{}))
	})

	t.Run("either order yields the same conversation", func(t *testing.T) {
		env := newTestEnv(t)
		a, err := env.conv.ResolveOrCreate(ctx, buyer1, seller1)
		require.NoError(t, err)
		b, err := env.conv.ResolveOrCreate(ctx, seller1, buyer1)
		require.NoError(t, err)

		assert.Equal(t, a.Id, b.Id)
		assert.Equal(t, buyer1, a.BuyerId)
		assert.Equal(t, seller1, a.SellerId)
		assert.Equal(t, constant.ConvStatusOpen, a.Status)
	})

	t.Run("concurrent first contact creates one row", func(t *testing.T) {
		env := newTestEnv(t)
		const workers = 16

		ids := make([]int64, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, b := buyer1, seller1
				if i%2 == 1 {
					a, b = b, a
				}
				conv, err := env.conv.ResolveOrCreate(ctx, a, b)
				errs[i] = err
				if conv != nil {
					ids[i] = conv.Id
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}
		assert.Equal(t, int64(1), env.count(t, &entity.Conversation{}))
	})
}

func TestFirstContactSend(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	info := env.send(t, buyer1, seller1, "Hi")

	assert.Equal(t, int64(1), info.Id)
	assert.Equal(t, buyer1, info.SenderId)
	assert.Equal(t, seller1, info.ReceiverId)
	assert.Equal(t, constant.KindText, info.Kind)
	assert.False(t, info.IsRead)
	assert.NotNil(t, info.Attachments)
	require.NotNil(t, info.Sender)
	assert.Equal(t, "Party "+buyer1, info.Sender.DisplayName)

	assert.Equal(t, int64(1), env.count(t, &entity.Conversation{}))
	conv, err := env.conv.Get(ctx, info.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, info.CreatedAt, conv.LastMessageAt)

	unread, err := env.read.UnreadCount(ctx, seller1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	unread, err = env.read.UnreadCount(ctx, buyer1)
	require.NoError(t, err)
	assert.Zero(t, unread)

	require.Equal(t, 1, env.notifier.messageCount())
	assert.Equal(t, info.Id, env.notifier.messages[0].Id)
}

func TestFailedFirstContactLeavesNoConversation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// the claim fails inside the transaction that would create the conversation
	tgt := &target{buyerId: buyer1, sellerId: seller1}
	_, err := env.msg.submit(ctx, tgt, buyer1, &SendMessageRequest{Body: "hello", AttachmentIds: []int64{999}}, nil)
	assertCode(t, errcode.ErrInvalidAttachment, err)

	assert.Zero(t, env.count(t, &entity.Message{}))
	assert.Zero(t, env.count(t, &entity.Conversation{}))

	convs, err := env.conv.ListConversations(ctx, buyer1, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestConcurrentFirstContact(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		sender, recipient := buyer1, seller1
		if i%2 == 1 {
			sender, recipient = seller1, buyer1
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.msg.Send(ctx, sender, &SendMessageRequest{RecipientId: recipient, Body: "hi"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), env.count(t, &entity.Conversation{}))
	assert.Equal(t, int64(10), env.count(t, &entity.Message{}))
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := env.send(t, buyer1, seller1, "hello")

	t.Run("empty body without attachments", func(t *testing.T) {
		_, err := env.msg.Send(ctx, buyer2, &SendMessageRequest{RecipientId: seller2, Body: "   "})
		assertCode(t, errcode.ErrEmptyMessage, err)
		// rejected content never opens a conversation
		assert.Equal(t, int64(1), env.count(t, &entity.Conversation{}))
	})

	t.Run("body too long", func(t *testing.T) {
		body := strings.Repeat("é", config.Default().Message.MaxBodyLength+1)
		_, err := env.msg.Send(ctx, buyer1, &SendMessageRequest{ConversationId: conv.ConversationId, Body: body})
		assertCode(t, errcode.ErrPayloadTooLarge, err)
	})

	t.Run("too many attachments", func(t *testing.T) {
		ids := []int64{1, 2, 3, 4, 5, 6}
		_, err := env.msg.Send(ctx, buyer1, &SendMessageRequest{ConversationId: conv.ConversationId, AttachmentIds: ids})
		assertCode(t, errcode.ErrPayloadTooLarge, err)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := env.msg.Send(ctx, buyer1, &SendMessageRequest{ConversationId: conv.ConversationId, Body: "x", Kind: "video"})
		assertCode(t, errcode.ErrInvalidParam, err)
	})

	t.Run("sender not a party", func(t *testing.T) {
		_, err := env.msg.Send(ctx, buyer2, &SendMessageRequest{ConversationId: conv.ConversationId, Body: "x"})
		assertCode(t, errcode.ErrUnauthorized, err)
	})

	t.Run("missing conversation", func(t *testing.T) {
		_, err := env.msg.Send(ctx, buyer1, &SendMessageRequest{ConversationId: 999, Body: "x"})
		assertCode(t, errcode.ErrConvNotFound, err)
	})

	t.Run("no target", func(t *testing.T) {
		_, err := env.msg.Send(ctx, buyer1, &SendMessageRequest{Body: "x"})
		assertCode(t, errcode.ErrInvalidParam, err)
	})

	t.Run("recipient type mismatch", func(t *testing.T) {
		_, err := env.msg.Send(ctx, buyer1, &SendMessageRequest{RecipientId: seller1, RecipientType: "buyer", Body: "x"})
		assertCode(t, errcode.ErrInvalidParties, err)
	})

	t.Run("closed conversation", func(t *testing.T) {
		_, err := env.conv.SetStatus(ctx, seller1, conv.ConversationId, constant.ConvStatusClosed)
		require.NoError(t, err)
		defer func() {
			_, err := env.conv.SetStatus(ctx, buyer1, conv.ConversationId, constant.ConvStatusOpen)
			require.NoError(t, err)
		}()

		_, err = env.msg.Send(ctx, buyer1, &SendMessageRequest{ConversationId: conv.ConversationId, Body: "x"})
		assertCode(t, errcode.ErrConversationClosed, err)
	})

	assert.Equal(t, int64(1), env.count(t, &entity.Message{}))
}

func TestOrderRefLinkedOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	first, second := "PO-1", "PO-2"

	info, err := env.msg.Send(ctx, buyer1, &SendMessageRequest{RecipientId: seller1, Body: "quote?", Kind: constant.KindInquiry, OrderRef: &first})
	require.NoError(t, err)
	assert.Equal(t, constant.KindInquiry, info.Kind)

	_, err = env.msg.Send(ctx, seller1, &SendMessageRequest{ConversationId: info.ConversationId, Body: "sure", OrderRef: &second})
	require.NoError(t, err)

	conv, err := env.conv.Get(ctx, info.ConversationId)
	require.NoError(t, err)
	require.NotNil(t, conv.OrderRef)
	assert.Equal(t, first, *conv.OrderRef)
}

func TestMessagesSinceTotalOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	convId := env.send(t, buyer1, seller1, "start").ConversationId

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := buyer1
			if i%2 == 1 {
				sender = seller1
			}
			_, err := env.msg.Send(ctx, sender, &SendMessageRequest{ConversationId: convId, Body: "concurrent"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	page, err := env.msg.MessagesSince(ctx, seller1, convId, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 21)
	assert.False(t, page.HasMore)

	seen := make(map[int64]bool)
	for i, m := range page.Messages {
		assert.False(t, seen[m.Id], "duplicate id %d", m.Id)
		seen[m.Id] = true
		if i > 0 {
			prev := page.Messages[i-1]
			assert.Greater(t, m.CreatedAt, prev.CreatedAt)
		}
	}
	assert.Equal(t, page.Messages[20].CreatedAt, page.Watermark)
}

func TestMessagesSincePaging(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var sent []*entity.MessageInfo
	for i := 0; i < 5; i++ {
		sent = append(sent, env.send(t, buyer1, seller1, "m"))
	}
	convId := sent[0].ConversationId

	page, err := env.msg.MessagesSince(ctx, buyer1, convId, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, sent[1].CreatedAt, page.Watermark)

	page, err = env.msg.MessagesSince(ctx, buyer1, convId, page.Watermark, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.False(t, page.HasMore)
	assert.Equal(t, sent[2].Id, page.Messages[0].Id)

	page, err = env.msg.MessagesSince(ctx, buyer1, convId, page.Watermark, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Equal(t, sent[4].CreatedAt, page.Watermark)

	_, err = env.msg.MessagesSince(ctx, buyer2, convId, 0, 10)
	assertCode(t, errcode.ErrConvNotFound, err)
}

func TestUnreadMovesByOnePerMessage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := env.send(t, buyer1, seller1, "one")
	second := env.send(t, buyer1, seller1, "two")

	unread, err := env.read.UnreadCount(ctx, seller1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	n, err := env.read.MarkRead(ctx, seller1, first.ConversationId, []int64{first.Id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// marking the same message again changes nothing
	n, err = env.read.MarkRead(ctx, seller1, first.ConversationId, []int64{first.Id})
	require.NoError(t, err)
	assert.Zero(t, n)

	unread, err = env.read.UnreadCount(ctx, seller1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	// the sender cannot mark the receiver's message read
	n, err = env.read.MarkRead(ctx, buyer1, second.ConversationId, []int64{second.Id})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = env.read.MarkRead(ctx, seller1, second.ConversationId, []int64{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkReadAll(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var (
		convId int64
		sent   []int64
	)
	for i := 0; i < 3; i++ {
		m := env.send(t, buyer1, seller1, "ping")
		convId = m.ConversationId
		sent = append(sent, m.Id)
	}
	other := env.send(t, buyer1, seller2, "elsewhere")

	n, err := env.read.MarkRead(ctx, seller1, convId, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	fourth := env.send(t, buyer1, seller1, "late")
	page, err := env.msg.MessagesSince(ctx, seller1, convId, 0, 0)
	require.NoError(t, err)
	for _, m := range page.Messages {
		assert.Equal(t, m.Id != fourth.Id, m.IsRead, "message %d", m.Id)
	}

	unread, err := env.read.UnreadCount(ctx, seller1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	// ids from another conversation are ignored
	n, err = env.read.MarkRead(ctx, seller1, convId, []int64{other.Id})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = env.read.MarkRead(ctx, buyer2, convId, nil)
	assertCode(t, errcode.ErrConvNotFound, err)

	require.Len(t, env.notifier.reads, 1)
	assert.Equal(t, seller1, env.notifier.reads[0].ReaderId)
	assert.Equal(t, int64(3), env.notifier.reads[0].Count)
	assert.Equal(t, sent, env.notifier.reads[0].MessageIds)
	assert.NotContains(t, env.notifier.reads[0].MessageIds, fourth.Id)
}

func TestSendWithFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("oversized file is rejected before anything is written", func(t *testing.T) {
		env := newTestEnv(t)
		big := &multipart.FileHeader{Filename: "catalog.pdf", Size: 15 << 20}

		_, err := env.msg.SendWithFiles(ctx, buyer1, &SendMessageRequest{RecipientId: seller1, Body: "see attached"}, []*multipart.FileHeader{big})
		assertCode(t, errcode.ErrPayloadTooLarge, err)
		assert.Zero(t, env.count(t, &entity.Message{}))
		assert.Zero(t, env.count(t, &entity.Conversation{}))
		assert.Zero(t, env.store.Len())
	})

	t.Run("unsupported type", func(t *testing.T) {
		env := newTestEnv(t)
		zip := fileHeader(t, "archive.zip", []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"))

		_, err := env.msg.SendWithFiles(ctx, buyer1, &SendMessageRequest{RecipientId: seller1}, []*multipart.FileHeader{zip})
		assertCode(t, errcode.ErrUnsupportedType, err)
		assert.Zero(t, env.count(t, &entity.Message{}))
	})

	t.Run("storage failure aborts the submission", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.SetPutErr(errors.New("bucket unavailable"))

		_, err := env.msg.SendWithFiles(ctx, buyer1, &SendMessageRequest{RecipientId: seller1, Body: "photo"},
			[]*multipart.FileHeader{fileHeader(t, "a.png", pngBytes)})
		assertCode(t, errcode.ErrStorageFailed, err)
		assert.Zero(t, env.count(t, &entity.Message{}))
		assert.Zero(t, env.count(t, &entity.Attachment{}))
		assert.Zero(t, env.count(t, &entity.Conversation{}))
	})

	t.Run("closed conversation stores nothing", func(t *testing.T) {
		env := newTestEnv(t)
		convId := env.send(t, buyer1, seller1, "hi").ConversationId
		_, err := env.conv.SetStatus(ctx, buyer1, convId, constant.ConvStatusClosed)
		require.NoError(t, err)

		_, err = env.msg.SendWithFiles(ctx, buyer1, &SendMessageRequest{ConversationId: convId},
			[]*multipart.FileHeader{fileHeader(t, "a.png", pngBytes)})
		assertCode(t, errcode.ErrConversationClosed, err)
		assert.Zero(t, env.store.Len())
	})

	t.Run("files are attached in order", func(t *testing.T) {
		env := newTestEnv(t)
		files := []*multipart.FileHeader{
			fileHeader(t, "photo.png", pngBytes),
			fileHeader(t, "notes.txt", []byte("minimum order quantity is 500 units")),
		}

		info, err := env.msg.SendWithFiles(ctx, buyer1, &SendMessageRequest{RecipientId: seller1}, files)
		require.NoError(t, err)

		assert.Equal(t, constant.KindFile, info.Kind)
		require.Len(t, info.Attachments, 2)
		assert.Equal(t, "photo.png", info.Attachments[0].Filename)
		assert.Equal(t, "image/png", info.Attachments[0].ContentType)
		assert.Equal(t, 0, info.Attachments[0].Position)
		assert.Equal(t, "text/plain", info.Attachments[1].ContentType)
		assert.Equal(t, 1, info.Attachments[1].Position)
		assert.True(t, strings.HasPrefix(info.Attachments[0].Path, "attachments/"+buyer1+"/"))
		assert.Equal(t, "memory://"+info.Attachments[0].Path, info.Attachments[0].URL)
		assert.Equal(t, 2, env.store.Len())
	})

	t.Run("images only infer the image kind", func(t *testing.T) {
		env := newTestEnv(t)
		info, err := env.msg.SendWithFiles(ctx, buyer1, &SendMessageRequest{RecipientId: seller1},
			[]*multipart.FileHeader{fileHeader(t, "a.png", pngBytes)})
		require.NoError(t, err)
		assert.Equal(t, constant.KindImage, info.Kind)
	})
}

func TestRegisteredAttachmentClaim(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	att, err := env.att.Register(ctx, buyer1, fileHeader(t, "grading.txt", []byte("grade A cotton")))
	require.NoError(t, err)
	assert.NotZero(t, att.Id)
	assert.NotEmpty(t, att.URL)

	t.Run("another uploader cannot claim it", func(t *testing.T) {
		_, err := env.msg.Send(ctx, seller1, &SendMessageRequest{RecipientId: buyer1, AttachmentIds: []int64{att.Id}})
		assertCode(t, errcode.ErrInvalidAttachment, err)
		assert.Zero(t, env.count(t, &entity.Conversation{}))
	})

	t.Run("unknown and repeated ids are rejected", func(t *testing.T) {
		_, err := env.msg.Send(ctx, buyer1, &SendMessageRequest{RecipientId: seller1, Body: "price list", AttachmentIds: []int64{999}})
		assertCode(t, errcode.ErrInvalidAttachment, err)

		_, err = env.msg.Send(ctx, buyer1, &SendMessageRequest{RecipientId: seller1, AttachmentIds: []int64{att.Id, att.Id}})
		assertCode(t, errcode.ErrInvalidAttachment, err)

		assert.Zero(t, env.count(t, &entity.Message{}))
		assert.Zero(t, env.count(t, &entity.Conversation{}))
	})

	info, err := env.msg.Send(ctx, buyer1, &SendMessageRequest{RecipientId: seller1, AttachmentIds: []int64{att.Id}})
	require.NoError(t, err)
	require.Len(t, info.Attachments, 1)
	assert.Equal(t, att.Id, info.Attachments[0].Id)
	assert.Equal(t, constant.KindFile, info.Kind)

	t.Run("a claimed attachment cannot be reused", func(t *testing.T) {
		before := env.count(t, &entity.Message{})
		_, err := env.msg.Send(ctx, buyer1, &SendMessageRequest{ConversationId: info.ConversationId, Body: "again", AttachmentIds: []int64{att.Id}})
		assertCode(t, errcode.ErrInvalidAttachment, err)
		assert.Equal(t, before, env.count(t, &entity.Message{}))
	})
}

func TestListConversations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.conv.SetPresence(staticPresence{seller2: true})

	env.send(t, buyer1, seller1, "first")
	env.send(t, seller2, buyer1, "offer")
	latest := env.send(t, seller2, buyer1, "better offer")

	infos, err := env.conv.ListConversations(ctx, buyer1, 0, 0)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	top := infos[0]
	assert.Equal(t, latest.ConversationId, top.Id)
	assert.Equal(t, seller2, top.Counterparty.Id)
	assert.True(t, top.Counterparty.Online)
	assert.Equal(t, int64(2), top.UnreadCount)
	require.NotNil(t, top.LastMessage)
	assert.Equal(t, latest.Id, top.LastMessage.Id)

	assert.Equal(t, seller1, infos[1].Counterparty.Id)
	assert.False(t, infos[1].Counterparty.Online)
	assert.Zero(t, infos[1].UnreadCount)

	empty, err := env.conv.ListConversations(ctx, buyer2, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	convId := env.send(t, buyer1, seller1, "hi").ConversationId

	info, err := env.conv.SetStatus(ctx, seller1, convId, constant.ConvStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, constant.ConvStatusClosed, info.Status)
	assert.Equal(t, buyer1, info.Counterparty.Id)

	_, err = env.conv.SetStatus(ctx, seller1, convId, "archived")
	assertCode(t, errcode.ErrInvalidParam, err)

	_, err = env.conv.SetStatus(ctx, buyer2, convId, constant.ConvStatusOpen)
	assertCode(t, errcode.ErrConvNotFound, err)
}
