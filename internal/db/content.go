package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Content is a gated article. Attachments and subscriptions are removed with it.
type Content struct {
	ID            string           `gorm:"primaryKey;size:64" json:"id"`
	Title         string           `gorm:"size:255;not null" json:"title"`
	Description   string           `gorm:"type:text;not null" json:"description"`
	Body          string           `gorm:"type:text;not null" json:"body"`
	CreatedAt     time.Time        `gorm:"index" json:"created_at"`
	IsPublic      bool             `gorm:"not null" json:"is_public"`
	ChannelURL    string           `gorm:"column:channel_url;size:512" json:"channel_url,omitempty"`
	ChannelID     string           `gorm:"column:channel_id;size:128" json:"channel_id,omitempty"`
	Attachments   []FileAttachment `gorm:"foreignKey:ContentID;constraint:OnDelete:CASCADE" json:"attachments"`
	Subscriptions []Subscription   `gorm:"foreignKey:ContentID;constraint:OnDelete:CASCADE" json:"-"`
}

// FileAttachment is a file owned by exactly one Content. Locator is an opaque
// reference to the bytes, currently a data URL.
type FileAttachment struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	ContentID  string    `gorm:"size:64;not null;index" json:"content_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	MimeType   string    `gorm:"size:255;not null" json:"mime_type"`
	Size       int64     `gorm:"not null" json:"size"`
	Locator    string    `gorm:"type:text;not null" json:"locator"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Position   int       `gorm:"not null" json:"-"`
	UploadedAt time.Time `gorm:"not null" json:"uploaded_at"`
}

// contentRow is one row of the attachment aggregation query.
type contentRow struct {
	ID          string    `gorm:"column:id"`
	Title       string    `gorm:"column:title"`
	Description string    `gorm:"column:description"`
	Body        string    `gorm:"column:body"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	IsPublic    bool      `gorm:"column:is_public"`
	ChannelURL  string    `gorm:"column:channel_url"`
	ChannelID   string    `gorm:"column:channel_id"`
	Attachments string    `gorm:"column:attachments"`
}

type attachmentJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	Locator    string `json:"locator"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Position   int    `json:"position"`
	UploadedAt string `json:"uploaded_at"`
}

const contentAggregateQuery = `
SELECT c.id, c.title, c.description, c.body, c.created_at, c.is_public,
       COALESCE(c.channel_url, '') AS channel_url,
       COALESCE(c.channel_id, '') AS channel_id,
       COALESCE(json_group_array(
         json_object(
           'id', f.id,
           'name', f.name,
           'mime_type', f.mime_type,
           'size', f.size,
           'locator', f.locator,
           'width', f.width,
           'height', f.height,
           'position', f.position,
           'uploaded_at', f.uploaded_at
         )
       ) FILTER (WHERE f.id IS NOT NULL), '[]') AS attachments
FROM contents c
LEFT JOIN file_attachments f ON f.content_id = c.id`

// sqlite 驱动写入 time.Time 时使用的格式
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

// PutContent upserts the content and each of its attachments in one transaction.
// Attachments not present in content.Attachments are left untouched.
func (s *Store) PutContent(ctx context.Context, content *Content) error {
	return s.putContent(ctx, content, false)
}

// ReplaceContent is PutContent that also deletes, in the same transaction,
// the stored attachments missing from content.Attachments.
func (s *Store) ReplaceContent(ctx context.Context, content *Content) error {
	return s.putContent(ctx, content, true)
}

func (s *Store) putContent(ctx context.Context, content *Content, replaceAttachments bool) error {
	if content == nil || strings.TrimSpace(content.ID) == "" {
		return errors.New("content id is required")
	}
	gdb, err := s.conn(ctx)
	if err != nil {
		return err
	}

	row := *content
	row.Attachments = nil
	row.Subscriptions = nil
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	// 统一按 UTC 存储，created_at 排序依赖字符串比较
	row.CreatedAt = row.CreatedAt.UTC()

	err = gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&row).Error; err != nil {
			return fmt.Errorf("upsert content %s: %w", row.ID, err)
		}

		keep := make([]string, 0, len(content.Attachments))
		for i := range content.Attachments {
			attachment := content.Attachments[i]
			attachment.ContentID = row.ID
			attachment.Position = i
			if attachment.UploadedAt.IsZero() {
				attachment.UploadedAt = time.Now()
			}
			attachment.UploadedAt = attachment.UploadedAt.UTC()
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&attachment).Error; err != nil {
				return fmt.Errorf("upsert attachment %s: %w", attachment.ID, err)
			}
			content.Attachments[i] = attachment
			keep = append(keep, attachment.ID)
		}

		if !replaceAttachments {
			return nil
		}
		stale := tx.Where("content_id = ?", row.ID)
		if len(keep) > 0 {
			stale = stale.Where("id NOT IN ?", keep)
		}
		if err := stale.Delete(&FileAttachment{}).Error; err != nil {
			return fmt.Errorf("delete stale attachments of %s: %w", row.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	content.CreatedAt = row.CreatedAt
	return nil
}

// ListContent returns every content newest first with attachments populated.
func (s *Store) ListContent(ctx context.Context) ([]Content, error) {
	gdb, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []contentRow
	query := contentAggregateQuery + "\nGROUP BY c.id\nORDER BY c.created_at DESC, c.id ASC"
	if err := gdb.Raw(query).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}

	contents := make([]Content, 0, len(rows))
	for _, row := range rows {
		content, err := row.toContent()
		if err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}
	return contents, nil
}

// GetContent returns the content with its attachments or ErrNotFound.
func (s *Store) GetContent(ctx context.Context, id string) (*Content, error) {
	gdb, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []contentRow
	query := contentAggregateQuery + "\nWHERE c.id = ?\nGROUP BY c.id"
	if err := gdb.Raw(query, id).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("get content %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	content, err := rows[0].toContent()
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// DeleteContent removes the content, its attachments and its subscriptions.
// Unknown ids are a no-op.
func (s *Store) DeleteContent(ctx context.Context, id string) error {
	gdb, err := s.conn(ctx)
	if err != nil {
		return err
	}

	return gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("content_id = ?", id).Delete(&FileAttachment{}).Error; err != nil {
			return fmt.Errorf("delete attachments of %s: %w", id, err)
		}
		if err := tx.Where("content_id = ?", id).Delete(&Subscription{}).Error; err != nil {
			return fmt.Errorf("delete subscriptions of %s: %w", id, err)
		}
		if err := tx.Where("id = ?", id).Delete(&Content{}).Error; err != nil {
			return fmt.Errorf("delete content %s: %w", id, err)
		}
		return nil
	})
}

// DeleteAttachment detaches a single file from its content. Unknown ids are a no-op.
func (s *Store) DeleteAttachment(ctx context.Context, contentID, attachmentID string) error {
	gdb, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := gdb.Where("id = ? AND content_id = ?", attachmentID, contentID).
		Delete(&FileAttachment{}).Error; err != nil {
		return fmt.Errorf("delete attachment %s: %w", attachmentID, err)
	}
	return nil
}

func (r contentRow) toContent() (Content, error) {
	attachments, err := decodeAttachments(r.ID, r.Attachments)
	if err != nil {
		return Content{}, err
	}
	return Content{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Body:        r.Body,
		CreatedAt:   r.CreatedAt,
		IsPublic:    r.IsPublic,
		ChannelURL:  r.ChannelURL,
		ChannelID:   r.ChannelID,
		Attachments: attachments,
	}, nil
}

func decodeAttachments(contentID, raw string) ([]FileAttachment, error) {
	attachments := []FileAttachment{}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return attachments, nil
	}

	var items []attachmentJSON
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode attachments of %s: %w", contentID, err)
	}

	for _, item := range items {
		uploadedAt, err := parseSQLiteTime(item.UploadedAt)
		if err != nil {
			return nil, fmt.Errorf("decode attachment %s: %w", item.ID, err)
		}
		attachments = append(attachments, FileAttachment{
			ID:         item.ID,
			ContentID:  contentID,
			Name:       item.Name,
			MimeType:   item.MimeType,
			Size:       item.Size,
			Locator:    item.Locator,
			Width:      item.Width,
			Height:     item.Height,
			Position:   item.Position,
			UploadedAt: uploadedAt,
		})
	}

	sort.SliceStable(attachments, func(i, j int) bool {
		if attachments[i].Position != attachments[j].Position {
			return attachments[i].Position < attachments[j].Position
		}
		if !attachments[i].UploadedAt.Equal(attachments[j].UploadedAt) {
			return attachments[i].UploadedAt.Before(attachments[j].UploadedAt)
		}
		return attachments[i].ID < attachments[j].ID
	})
	return attachments, nil
}

func parseSQLiteTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range sqliteTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}
