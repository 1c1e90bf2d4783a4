package handler

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/contentgate/internal/db"
	"github.com/contentgate/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionAttemptPrefix  = "attempt:"
	sessionPendingAttempt = "pending_attempt"
)

type emailRequest struct {
	Email string `json:"email"`
}

type contentPreview struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	IsPublic    bool      `json:"is_public"`
}

type attachmentView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	DownloadURL string `json:"download_url"`
}

func (a *API) accessView(c *gin.Context, content *db.Content, attempt *service.Attempt) gin.H {
	view := gin.H{
		"content": contentPreview{
			ID:          content.ID,
			Title:       content.Title,
			Description: content.Description,
			CreatedAt:   content.CreatedAt,
			IsPublic:    content.IsPublic,
		},
		"share_link": service.ShareLink(a.siteBaseURL, content.ID),
		"attempt":    attempt,
		"granted":    attempt.Granted(),
	}
	if !attempt.Granted() {
		return view
	}

	html, err := a.contents.Render(content)
	if err != nil {
		c.Error(err)
	} else {
		view["html"] = html
	}
	attachments := make([]attachmentView, 0, len(content.Attachments))
	for _, attachment := range content.Attachments {
		attachments = append(attachments, attachmentView{
			ID:          attachment.ID,
			Name:        attachment.Name,
			MimeType:    attachment.MimeType,
			Size:        attachment.Size,
			Width:       attachment.Width,
			Height:      attachment.Height,
			DownloadURL: fmt.Sprintf("/content/%s/attachments/%s", content.ID, attachment.ID),
		})
	}
	view["attachments"] = attachments
	return view
}

// currentAttempt returns the tracked attempt for contentID or starts a new one.
// The session is modified but not saved.
func (a *API) currentAttempt(c *gin.Context, contentID string) (*service.Attempt, error) {
	session := sessions.Default(c)
	if attemptID, ok := session.Get(sessionAttemptPrefix + contentID).(string); ok && attemptID != "" {
		if attempt, err := a.engine.Get(attemptID); err == nil && attempt.ContentID == contentID {
			return attempt, nil
		}
	}

	attempt, err := a.engine.Begin(c.Request.Context(), contentID)
	if err != nil {
		return nil, err
	}
	if attempt.ID != "" {
		session.Set(sessionAttemptPrefix+contentID, attempt.ID)
	}
	return attempt, nil
}

// ShowContent is the share link target: it reports the gate state and, once
// access is granted, the rendered body.
func (a *API) ShowContent(c *gin.Context) {
	contentID := c.Param("id")
	content, err := a.contents.Get(c.Request.Context(), contentID)
	if err != nil {
		respondServiceError(c, err, "failed to load content")
		return
	}

	attempt, err := a.currentAttempt(c, content.ID)
	if err != nil {
		respondServiceError(c, err, "failed to start verification")
		return
	}
	if err := sessions.Default(c).Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}
	c.JSON(http.StatusOK, a.accessView(c, content, attempt))
}

// SubmitEmail handles the email form of the gate.
func (a *API) SubmitEmail(c *gin.Context) {
	var req emailRequest
	if !bindJSON(c, &req, "email is required") {
		return
	}

	content, err := a.contents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "failed to load content")
		return
	}
	attempt, err := a.currentAttempt(c, content.ID)
	if err != nil {
		respondServiceError(c, err, "failed to start verification")
		return
	}
	session := sessions.Default(c)
	if !attempt.Granted() {
		attempt, err = a.engine.SubmitEmail(c.Request.Context(), attempt.ID, req.Email)
		if err == nil && attempt.State == service.StateAwaitingExternalAuth {
			session.Set(sessionPendingAttempt, attempt.ID)
		}
	}
	if saveErr := session.Save(); saveErr != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}
	if err != nil {
		a.respondAttemptError(c, content, attempt, err)
		return
	}
	c.JSON(http.StatusOK, a.accessView(c, content, attempt))
}

// StartGoogleAuth redirects the visitor to the Google consent screen for the
// attempt waiting on external sign-in.
func (a *API) StartGoogleAuth(c *gin.Context) {
	attemptID, _ := sessions.Default(c).Get(sessionPendingAttempt).(string)
	if attemptID == "" {
		respondError(c, http.StatusBadRequest, "no verification in progress")
		return
	}
	attempt, err := a.engine.Get(attemptID)
	if err != nil {
		respondServiceError(c, err, "failed to load verification")
		return
	}
	if attempt.State != service.StateAwaitingExternalAuth || attempt.AuthURL == "" {
		respondServiceError(c, service.ErrInvalidTransition, "")
		return
	}
	c.Redirect(http.StatusFound, attempt.AuthURL)
}

// OAuthCallback completes Google sign-in and sends the visitor back to the
// content page, which reports the outcome.
func (a *API) OAuthCallback(c *gin.Context) {
	session := sessions.Default(c)
	attemptID, _ := session.Get(sessionPendingAttempt).(string)
	if attemptID == "" {
		respondError(c, http.StatusBadRequest, "no verification in progress")
		return
	}

	// a consent screen cancelled by the visitor arrives without a code and
	// fails the exchange, which re-prompts for the email
	attempt, err := a.engine.HandleCallback(c.Request.Context(), attemptID, c.Query("code"))
	if attempt == nil {
		session.Delete(sessionPendingAttempt)
		_ = session.Save()
		respondServiceError(c, err, "failed to complete verification")
		return
	}
	if err != nil {
		a.logger.WithError(err).WithField("attempt_id", attemptID).Warn("oauth callback finished with error")
	}

	session.Delete(sessionPendingAttempt)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("/content/%s", attempt.ContentID))
}

// CancelAttempt drops the visitor's attempt for a content.
func (a *API) CancelAttempt(c *gin.Context) {
	contentID := c.Param("id")
	session := sessions.Default(c)
	key := sessionAttemptPrefix + contentID
	if attemptID, ok := session.Get(key).(string); ok && attemptID != "" {
		a.engine.Cancel(attemptID)
		if pending, _ := session.Get(sessionPendingAttempt).(string); pending == attemptID {
			session.Delete(sessionPendingAttempt)
		}
	}
	session.Delete(key)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification cancelled"})
}

// DownloadAttachment serves attachment bytes to visitors holding access.
func (a *API) DownloadAttachment(c *gin.Context) {
	content, err := a.contents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "failed to load content")
		return
	}
	if !content.IsPublic && !a.sessionGranted(c, content.ID) {
		respondError(c, http.StatusForbidden, "access to this content has not been granted")
		return
	}

	attachmentID := c.Param("attachmentId")
	for _, attachment := range content.Attachments {
		if attachment.ID != attachmentID {
			continue
		}
		mediaType, data, err := service.DecodeLocator(attachment.Locator)
		if err != nil {
			respondServiceError(c, err, "attachment is unreadable")
			return
		}
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Name}))
		c.Data(http.StatusOK, mediaType, data)
		return
	}
	respondError(c, http.StatusNotFound, "attachment not found")
}

func (a *API) sessionGranted(c *gin.Context, contentID string) bool {
	attemptID, _ := sessions.Default(c).Get(sessionAttemptPrefix + contentID).(string)
	if attemptID == "" {
		return false
	}
	attempt, err := a.engine.Get(attemptID)
	return err == nil && attempt.ContentID == contentID && attempt.Granted()
}

// respondAttemptError reports an engine error together with the attempt
// snapshot so the client can re-render the gate.
func (a *API) respondAttemptError(c *gin.Context, content *db.Content, attempt *service.Attempt, err error) {
	status, message := errorStatus(err, "verification failed")
	if status >= http.StatusInternalServerError {
		c.Error(err)
	}
	if attempt == nil || errors.Is(err, service.ErrAttemptNotFound) {
		respondError(c, status, message)
		return
	}
	view := a.accessView(c, content, attempt)
	view["error"] = message
	c.JSON(status, view)
}
