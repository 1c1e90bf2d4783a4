package handler

import (
	"net/http"

	"github.com/contentgate/internal/service"
	"github.com/gin-gonic/gin"
)

type policyRequest struct {
	ChannelURL  string `json:"channel_url"`
	ChannelName string `json:"channel_name"`
	ChannelID   string `json:"channel_id"`
	Enabled     bool   `json:"enabled"`
}

type resolveRequest struct {
	ChannelURL string `json:"channel_url" binding:"required"`
}

// GetChannelPolicy 返回当前频道策略，未配置时视为关闭
func (a *API) GetChannelPolicy(c *gin.Context) {
	policy, err := a.policies.Get(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "failed to load channel policy")
		return
	}
	c.JSON(http.StatusOK, gin.H{"policy": policy})
}

// UpdateChannelPolicy 保存频道策略
func (a *API) UpdateChannelPolicy(c *gin.Context) {
	var req policyRequest
	if !bindJSON(c, &req, "invalid channel policy payload") {
		return
	}
	policy, err := a.policies.Configure(c.Request.Context(), service.PolicyInput{
		ChannelURL:  req.ChannelURL,
		ChannelName: req.ChannelName,
		ChannelID:   req.ChannelID,
		Enabled:     req.Enabled,
	})
	if err != nil {
		respondServiceError(c, err, "failed to save channel policy")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "channel policy saved", "policy": policy})
}

// ResolveChannel 预览频道 URL 对应的频道 ID
func (a *API) ResolveChannel(c *gin.Context) {
	var req resolveRequest
	if !bindJSON(c, &req, "channel_url is required") {
		return
	}
	channelID, err := a.policies.Resolve(c.Request.Context(), req.ChannelURL)
	if err != nil {
		respondServiceError(c, err, "failed to resolve channel")
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": channelID})
}
