package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/contentgate/internal/db"
	"github.com/google/uuid"
)

// ContentStore is the persistence surface used by ContentService.
type ContentStore interface {
	PutContent(ctx context.Context, content *db.Content) error
	ReplaceContent(ctx context.Context, content *db.Content) error
	GetContent(ctx context.Context, id string) (*db.Content, error)
	ListContent(ctx context.Context) ([]db.Content, error)
	DeleteContent(ctx context.Context, id string) error
	DeleteAttachment(ctx context.Context, contentID, attachmentID string) error
	GetChannelPolicy(ctx context.Context) (*db.ChannelPolicy, error)
}

// ContentInput represents fields accepted when creating or updating a content.
// A nil Attachments keeps the stored attachments on update.
type ContentInput struct {
	ID          string
	Title       string
	Description string
	Body        string
	IsPublic    bool
	ChannelURL  string
	ChannelID   string
	Attachments []db.FileAttachment
}

// ContentService manages gated content.
type ContentService struct {
	store ContentStore
	now   func() time.Time
}

// NewContentService creates a ContentService instance.
func NewContentService(store ContentStore) *ContentService {
	return &ContentService{store: store, now: time.Now}
}

// Save creates the content when no content with input.ID exists, otherwise
// updates it. CreatedAt of an existing content is kept.
func (s *ContentService) Save(ctx context.Context, input ContentInput) (*db.Content, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	body := strings.TrimSpace(input.Body)
	switch {
	case title == "":
		return nil, newValidationError("title", "title is required")
	case description == "":
		return nil, newValidationError("description", "description is required")
	case body == "":
		return nil, newValidationError("body", "body is required")
	}

	content := &db.Content{
		ID:          strings.TrimSpace(input.ID),
		Title:       title,
		Description: description,
		Body:        input.Body,
		IsPublic:    input.IsPublic,
		ChannelURL:  strings.TrimSpace(input.ChannelURL),
		ChannelID:   strings.TrimSpace(input.ChannelID),
	}

	var existing *db.Content
	if content.ID == "" {
		content.ID = uuid.NewString()
	} else {
		found, err := s.store.GetContent(ctx, content.ID)
		switch {
		case err == nil:
			existing = found
		case !errors.Is(err, db.ErrNotFound):
			return nil, err
		}
	}

	if existing != nil {
		content.CreatedAt = existing.CreatedAt
	} else {
		content.CreatedAt = s.now()
	}

	if !content.IsPublic && content.ChannelURL == "" && content.ChannelID == "" {
		policy, err := s.store.GetChannelPolicy(ctx)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			content.ChannelURL = policy.ChannelURL
			content.ChannelID = policy.ChannelID
		}
	}

	switch {
	case input.Attachments != nil:
		content.Attachments = append([]db.FileAttachment(nil), input.Attachments...)
	case existing != nil:
		content.Attachments = existing.Attachments
	}
	for i := range content.Attachments {
		if content.Attachments[i].ID == "" {
			content.Attachments[i].ID = uuid.NewString()
		}
	}

	save := s.store.PutContent
	if existing != nil && input.Attachments != nil {
		// 显式给出的附件列表即为完整列表
		save = s.store.ReplaceContent
	}
	if err := save(ctx, content); err != nil {
		return nil, err
	}

	return s.Get(ctx, content.ID)
}

// AddAttachment appends an encoded file to an existing content.
func (s *ContentService) AddAttachment(ctx context.Context, contentID string, attachment db.FileAttachment) (*db.Content, error) {
	content, err := s.Get(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	attachment.ContentID = content.ID
	content.Attachments = append(content.Attachments, attachment)
	if err := s.store.PutContent(ctx, content); err != nil {
		return nil, err
	}
	return s.Get(ctx, contentID)
}

// RemoveAttachment detaches one file from a content.
func (s *ContentService) RemoveAttachment(ctx context.Context, contentID, attachmentID string) error {
	if _, err := s.Get(ctx, contentID); err != nil {
		return err
	}
	return s.store.DeleteAttachment(ctx, contentID, attachmentID)
}

// Remove deletes a content together with its attachments and subscriptions.
func (s *ContentService) Remove(ctx context.Context, id string) error {
	return s.store.DeleteContent(ctx, strings.TrimSpace(id))
}

// List returns all contents newest first.
func (s *ContentService) List(ctx context.Context) ([]db.Content, error) {
	return s.store.ListContent(ctx)
}

// Get returns one content or ErrContentNotFound.
func (s *ContentService) Get(ctx context.Context, id string) (*db.Content, error) {
	content, err := s.store.GetContent(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	return content, nil
}

// Render returns the sanitized HTML of the content body.
func (s *ContentService) Render(content *db.Content) (string, error) {
	if content == nil {
		return "", nil
	}
	return RenderMarkdown(content.Body)
}

// ShareLink builds the visitor URL of a content.
func ShareLink(origin, id string) string {
	return fmt.Sprintf("%s/content/%s", strings.TrimRight(origin, "/"), url.PathEscape(id))
}
