package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/tradechat/internal/blob"
	"github.com/mbeoliero/tradechat/internal/entity"
	"github.com/mbeoliero/tradechat/internal/repository"
)

// Hydrator turns stored messages into the shape clients render: sender
// display attributes and fetchable attachment URLs.
type Hydrator struct {
	partyRepo *repository.PartyRepo
	store     blob.Store
}

// NewHydrator creates a new Hydrator. store may be nil, in which case
// attachment URLs are left empty.
func NewHydrator(repos *repository.Repositories, store blob.Store) *Hydrator {
	return &Hydrator{
		partyRepo: repos.Party,
		store:     store,
	}
}

// Message hydrates a single message
func (h *Hydrator) Message(ctx context.Context, msg *entity.Message) *entity.MessageInfo {
	return h.Messages(ctx, []*entity.Message{msg})[0]
}

// Messages hydrates messages in order. Directory or URL lookups that fail
// degrade the result instead of failing it.
func (h *Hydrator) Messages(ctx context.Context, msgs []*entity.Message) []*entity.MessageInfo {
	result := make([]*entity.MessageInfo, 0, len(msgs))
	if len(msgs) == 0 {
		return result
	}

	senderIds := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)
	for _, m := range msgs {
		if _, ok := seen[m.SenderId]; !ok {
			seen[m.SenderId] = struct{}{}
			senderIds = append(senderIds, m.SenderId)
		}
	}
	parties, err := h.partyRepo.GetByIds(ctx, senderIds)
	if err != nil {
		log.CtxWarn(ctx, "hydrate senders failed: %v", err)
	}

	for _, m := range msgs {
		info := m.ToMessageInfo()
		if p, ok := parties[m.SenderId]; ok {
			info.Sender = p.ToPartyInfo()
		}
		h.fillURLs(ctx, info.Attachments)
		result = append(result, info)
	}
	return result
}

// Attachment hydrates a single attachment reference
func (h *Hydrator) Attachment(ctx context.Context, att *entity.Attachment) *entity.AttachmentInfo {
	info := att.ToAttachmentInfo()
	h.fillURLs(ctx, []*entity.AttachmentInfo{info})
	return info
}

func (h *Hydrator) fillURLs(ctx context.Context, atts []*entity.AttachmentInfo) {
	if h.store == nil {
		return
	}
	for _, a := range atts {
		url, err := h.store.URL(ctx, a.Path)
		if err != nil {
			log.CtxDebug(ctx, "resolve attachment url failed: path=%s, error=%v", a.Path, err)
			continue
		}
		a.URL = url
	}
}
