package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// UploadAttachment 处理附件上传，文件以 data URL 形式保存在内容上
func (a *API) UploadAttachment(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "no file uploaded")
		return
	}
	if a.maxUpload > 0 && file.Size > a.maxUpload {
		respondError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds the %d byte limit", a.maxUpload))
		return
	}

	src, err := file.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "failed to read upload")
		return
	}
	defer src.Close()

	reader := io.Reader(src)
	if a.maxUpload > 0 {
		reader = io.LimitReader(src, a.maxUpload+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		respondError(c, http.StatusBadRequest, "failed to read upload")
		return
	}

	attachment, err := a.attachments.Encode(file.Filename, file.Header.Get("Content-Type"), data)
	if err != nil {
		respondServiceError(c, err, "failed to encode attachment")
		return
	}

	content, err := a.contents.AddAttachment(c.Request.Context(), c.Param("id"), attachment)
	if err != nil {
		respondServiceError(c, err, "failed to save attachment")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":    "upload succeeded",
		"attachment": attachment,
		"content":    content,
	})
}
