package service

import (
	"bytes"
	"fmt"
	htmlstd "html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		// raw HTML is needed for the embed blocks; bluemonday strips the rest
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML(), html.WithUnsafe()),
	)
	bodySanitizer = buildBodySanitizer()

	youtubeLinePattern  = regexp.MustCompile(`^\s*<?((?:https?://)?(?:www\.|m\.)?(?:youtube\.com|youtu\.be)/[^\s>]+)>?\s*$`)
	youtubeEmbedPattern = regexp.MustCompile(`^https://www\.youtube-nocookie\.com/embed/[A-Za-z0-9_-]+(\?[^\s]*)?$`)
	youtubeTimePattern  = regexp.MustCompile(`(?i)(\d+)(h|m|s)`)
	youtubeVideoID      = regexp.MustCompile(`^[A-Za-z0-9_-]{6,20}$`)
)

func buildBodySanitizer() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("iframe")
	policy.AllowAttrs("class", "data-youtube-video").OnElements("div")
	policy.AllowAttrs("src").Matching(youtubeEmbedPattern).OnElements("iframe")
	policy.AllowAttrs("title", "allow", "allowfullscreen", "frameborder", "loading", "referrerpolicy").OnElements("iframe")
	return policy
}

// RenderMarkdown converts a content body to sanitized HTML. A line holding only
// a YouTube video link becomes an embedded player.
func RenderMarkdown(body string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(embedYouTubeLinks(body)), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return bodySanitizer.Sanitize(buf.String()), nil
}

func embedYouTubeLinks(markdown string) string {
	if !strings.Contains(markdown, "youtu") {
		return markdown
	}

	lines := strings.Split(markdown, "\n")
	fence := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			switch {
			case fence == "":
				fence = trimmed[:3]
			case strings.HasPrefix(trimmed, fence):
				fence = ""
			}
			continue
		}
		// indented code keeps the link verbatim
		if fence != "" || strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
			continue
		}

		match := youtubeLinePattern.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		if embedURL, ok := youtubeEmbedURL(match[1]); ok {
			lines[i] = fmt.Sprintf(
				`<div class="video-embed" data-youtube-video="true"><iframe src="%s" title="YouTube video" loading="lazy" allow="accelerometer; encrypted-media; gyroscope; picture-in-picture" allowfullscreen frameborder="0" referrerpolicy="strict-origin-when-cross-origin"></iframe></div>`,
				htmlstd.EscapeString(embedURL),
			)
		}
	}
	return strings.Join(lines, "\n")
}

// youtubeEmbedURL maps watch, share, shorts and live links to a privacy
// enhanced embed URL.
func youtubeEmbedURL(raw string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(raw), "http") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	host := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www."), "m.")
	path := strings.Trim(parsed.Path, "/")

	var videoID string
	switch host {
	case "youtu.be":
		videoID = path
	case "youtube.com":
		if path == "watch" {
			videoID = parsed.Query().Get("v")
		} else {
			for _, prefix := range []string{"shorts/", "embed/", "live/"} {
				if strings.HasPrefix(path, prefix) {
					videoID = strings.TrimPrefix(path, prefix)
					break
				}
			}
		}
	default:
		return "", false
	}
	if idx := strings.Index(videoID, "/"); idx >= 0 {
		videoID = videoID[:idx]
	}
	if !youtubeVideoID.MatchString(videoID) {
		return "", false
	}

	values := url.Values{}
	values.Set("rel", "0")
	if start := youtubeStartSeconds(parsed.Query()); start > 0 {
		values.Set("start", strconv.Itoa(start))
	}
	return "https://www.youtube-nocookie.com/embed/" + videoID + "?" + values.Encode(), true
}

// youtubeStartSeconds reads t= or start=, either plain seconds or 1h2m3s.
func youtubeStartSeconds(query url.Values) int {
	value := query.Get("start")
	if value == "" {
		value = query.Get("t")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return seconds
	}

	total := 0
	for _, match := range youtubeTimePattern.FindAllStringSubmatch(value, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		switch strings.ToLower(match[2]) {
		case "h":
			total += n * 3600
		case "m":
			total += n * 60
		case "s":
			total += n
		}
	}
	return total
}
