package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/tradechat/internal/blob"
	"github.com/mbeoliero/tradechat/internal/config"
	"github.com/mbeoliero/tradechat/internal/entity"
	"github.com/mbeoliero/tradechat/internal/repository"
	"github.com/mbeoliero/tradechat/pkg/errcode"
	"github.com/mbeoliero/tradechat/pkg/idgen"
)

// sniffLen is how many leading bytes are inspected to detect the content type
const sniffLen = 3072

// AttachmentService validates uploaded files and records their references.
// Bytes go to the blob store; only the returned key is persisted.
type AttachmentService struct {
	attRepo  *repository.AttachmentRepo
	store    blob.Store
	cfg      *config.AttachmentConfig
	hydrator *Hydrator
}

// NewAttachmentService creates a new AttachmentService
func NewAttachmentService(repos *repository.Repositories, store blob.Store, cfg *config.AttachmentConfig, hydrator *Hydrator) *AttachmentService {
	return &AttachmentService{
		attRepo:  repos.Attachment,
		store:    store,
		cfg:      cfg,
		hydrator: hydrator,
	}
}

// Upload is a validated file ready to be stored
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Ext         string
	open        func() (io.ReadCloser, error)
}

// Validate checks a multipart file against the size ceiling and the content
// type allow-list. The size is checked before any byte is read.
func (s *AttachmentService) Validate(fh *multipart.FileHeader) (*Upload, error) {
	if fh == nil {
		return nil, errcode.ErrInvalidParam
	}
	return s.validate(fh.Filename, fh.Size, func() (io.ReadCloser, error) { return fh.Open() })
}

func (s *AttachmentService) validate(filename string, size int64, open func() (io.ReadCloser, error)) (*Upload, error) {
	if size > s.cfg.MaxSize {
		return nil, errcode.ErrPayloadTooLarge.Wrap(fmt.Errorf("%s is %d bytes, limit %d", filename, size, s.cfg.MaxSize))
	}
	if size <= 0 {
		return nil, errcode.ErrInvalidAttachment.Wrap(fmt.Errorf("%s is empty", filename))
	}

	f, err := open()
	if err != nil {
		return nil, errcode.ErrInvalidAttachment.Wrap(err)
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	_ = f.Close()
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errcode.ErrInvalidAttachment.Wrap(err)
	}

	mt := mimetype.Detect(head[:n])
	if !s.allowed(mt) {
		return nil, errcode.ErrUnsupportedType.Wrap(fmt.Errorf("%s is %s", filename, mt.String()))
	}
	contentType, _, _ := strings.Cut(mt.String(), ";")

	return &Upload{
		Filename:    filepath.Base(filename),
		Size:        size,
		ContentType: contentType,
		Ext:         mt.Extension(),
		open:        open,
	}, nil
}

func (s *AttachmentService) allowed(mt *mimetype.MIME) bool {
	for _, t := range s.cfg.AllowedTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

// Store writes a validated upload to the blob store under a fresh key and
// returns its unsaved reference
func (s *AttachmentService) Store(ctx context.Context, uploaderId string, up *Upload) (*entity.Attachment, error) {
	id, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate blob key failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	key := fmt.Sprintf("attachments/%s/%s%s", uploaderId, id, up.Ext)

	f, err := up.open()
	if err != nil {
		return nil, errcode.ErrInvalidAttachment.Wrap(err)
	}
	defer f.Close()

	if err := s.store.Put(ctx, key, f, up.Size, up.ContentType); err != nil {
		log.CtxError(ctx, "store attachment failed: key=%s, error=%v", key, err)
		return nil, errcode.ErrStorageFailed
	}

	return &entity.Attachment{
		UploaderId:  uploaderId,
		Filename:    up.Filename,
		StoragePath: key,
		Size:        up.Size,
		ContentType: up.ContentType,
		CreatedAt:   entity.NowUnixMilli(),
	}, nil
}

// StoreAll validates every file, then stores them in order. If any step fails
// the blobs already written are removed and nothing is returned.
func (s *AttachmentService) StoreAll(ctx context.Context, uploaderId string, files []*multipart.FileHeader) ([]*entity.Attachment, error) {
	if len(files) > s.cfg.MaxPerMessage {
		return nil, errcode.ErrPayloadTooLarge.Wrap(fmt.Errorf("%d attachments, limit %d", len(files), s.cfg.MaxPerMessage))
	}

	uploads := make([]*Upload, 0, len(files))
	for _, fh := range files {
		up, err := s.Validate(fh)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, up)
	}

	stored := make([]*entity.Attachment, 0, len(uploads))
	for _, up := range uploads {
		att, err := s.Store(ctx, uploaderId, up)
		if err != nil {
			s.Discard(ctx, stored)
			return nil, err
		}
		stored = append(stored, att)
	}
	return stored, nil
}

// Register stores a file ahead of submission and records a pending reference
// owned by the uploader. A later submission claims it by id.
func (s *AttachmentService) Register(ctx context.Context, uploaderId string, fh *multipart.FileHeader) (*entity.AttachmentInfo, error) {
	up, err := s.Validate(fh)
	if err != nil {
		return nil, err
	}
	att, err := s.Store(ctx, uploaderId, up)
	if err != nil {
		return nil, err
	}

	if err := s.attRepo.Create(ctx, att); err != nil {
		log.CtxError(ctx, "create attachment failed: uploader_id=%s, error=%v", uploaderId, err)
		s.Discard(ctx, []*entity.Attachment{att})
		return nil, errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "attachment registered: id=%d, uploader_id=%s, size=%d, type=%s", att.Id, uploaderId, att.Size, att.ContentType)
	return s.hydrator.Attachment(ctx, att), nil
}

// Discard removes stored blobs of an aborted submission
func (s *AttachmentService) Discard(ctx context.Context, atts []*entity.Attachment) {
	for _, a := range atts {
		if err := s.store.Delete(ctx, a.StoragePath); err != nil {
			log.CtxWarn(ctx, "discard attachment failed: key=%s, error=%v", a.StoragePath, err)
		}
	}
}

// MaxPerMessage returns the attachment count ceiling
func (s *AttachmentService) MaxPerMessage() int {
	return s.cfg.MaxPerMessage
}
