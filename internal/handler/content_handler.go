package handler

import (
	"net/http"

	"github.com/contentgate/internal/db"
	"github.com/contentgate/internal/service"
	"github.com/gin-gonic/gin"
)

type contentRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Body        string              `json:"body"`
	IsPublic    bool                `json:"is_public"`
	ChannelURL  string              `json:"channel_url"`
	ChannelID   string              `json:"channel_id"`
	Attachments []db.FileAttachment `json:"attachments"`
}

func (r contentRequest) input(id string) service.ContentInput {
	return service.ContentInput{
		ID:          id,
		Title:       r.Title,
		Description: r.Description,
		Body:        r.Body,
		IsPublic:    r.IsPublic,
		ChannelURL:  r.ChannelURL,
		ChannelID:   r.ChannelID,
		Attachments: r.Attachments,
	}
}

func (a *API) contentResponse(content *db.Content) gin.H {
	return gin.H{
		"content":    content,
		"share_link": service.ShareLink(a.siteBaseURL, content.ID),
	}
}

// ListContents 获取全部内容，按创建时间倒序
func (a *API) ListContents(c *gin.Context) {
	contents, err := a.contents.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "failed to list contents")
		return
	}
	c.JSON(http.StatusOK, gin.H{"contents": contents})
}

// GetContent 获取单个内容
func (a *API) GetContent(c *gin.Context) {
	content, err := a.contents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "failed to load content")
		return
	}
	c.JSON(http.StatusOK, a.contentResponse(content))
}

// CreateContent 创建内容
func (a *API) CreateContent(c *gin.Context) {
	var req contentRequest
	if !bindJSON(c, &req, "invalid content payload") {
		return
	}
	content, err := a.contents.Save(c.Request.Context(), req.input(""))
	if err != nil {
		respondServiceError(c, err, "failed to create content")
		return
	}
	c.JSON(http.StatusCreated, a.contentResponse(content))
}

// UpdateContent 更新内容，保留原始创建时间
func (a *API) UpdateContent(c *gin.Context) {
	var req contentRequest
	if !bindJSON(c, &req, "invalid content payload") {
		return
	}
	id := c.Param("id")
	if _, err := a.contents.Get(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "failed to load content")
		return
	}
	content, err := a.contents.Save(c.Request.Context(), req.input(id))
	if err != nil {
		respondServiceError(c, err, "failed to update content")
		return
	}
	c.JSON(http.StatusOK, a.contentResponse(content))
}

// DeleteContent 删除内容及其附件和订阅
func (a *API) DeleteContent(c *gin.Context) {
	if err := a.contents.Remove(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err, "failed to delete content")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "content deleted"})
}

// DeleteAttachment 移除单个附件
func (a *API) DeleteAttachment(c *gin.Context) {
	if err := a.contents.RemoveAttachment(c.Request.Context(), c.Param("id"), c.Param("attachmentId")); err != nil {
		respondServiceError(c, err, "failed to delete attachment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "attachment deleted"})
}

// ListSubscriptions 列出订阅记录，可按 content_id 过滤
func (a *API) ListSubscriptions(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		subscriptions []db.Subscription
		err           error
	)
	if contentID := c.Query("content_id"); contentID != "" {
		subscriptions, err = a.subscriptions.ListSubscriptionsByContent(ctx, contentID)
	} else {
		subscriptions, err = a.subscriptions.ListSubscriptions(ctx)
	}
	if err != nil {
		respondServiceError(c, err, "failed to list subscriptions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subscriptions, "total": len(subscriptions)})
}
