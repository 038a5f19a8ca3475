package extract

import (
	"net/url"
	"regexp"
	"strings"

	"streamscribe/internal/types"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,20}$`)

// VideoID pulls the platform video id out of the supported YouTube URL
// shapes: watch?v=, youtu.be/, shorts/, embed/. Anything else is
// ErrInvalidSourceURL.
func VideoID(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", types.ErrInvalidSourceURL
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	var id string
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		}
	case "youtu.be":
		id = strings.TrimPrefix(u.Path, "/")
	default:
		return "", types.ErrInvalidSourceURL
	}

	id = strings.TrimSuffix(id, "/")
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[:i]
	}
	if !idPattern.MatchString(id) {
		return "", types.ErrInvalidSourceURL
	}
	return id, nil
}

// NormalizeURL reduces the URL to a canonical cache key so watch?v=, short
// and shared link forms of the same video hit the same cache entry.
func NormalizeURL(raw string) string {
	id, err := VideoID(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return "https://www.youtube.com/watch?v=" + id
}
