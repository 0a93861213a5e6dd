// Package source classifies raw job references into source kinds.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/raphaelgruber/streamscribe/internal/models"
)

// ErrInvalidSource is returned for references that match no known shape.
var ErrInvalidSource = errors.New("invalid source")

// youtubePattern accepts the canonical, nocookie, mobile and short-link
// forms, with or without scheme, followed by optional query or path.
var youtubePattern = regexp.MustCompile(
	`^((?:https?:)?//)?((?:www|m)\.)?((?:youtube(?:-nocookie)?\.com|youtu\.be))(/(?:[\w\-]+\?v=|embed/|v/)?)([\w\-]+)(\S+)?$`)

// Source is a classified reference.
type Source struct {
	Kind models.SourceKind
	Ref  string
}

// Classify determines the kind of raw. Live is never inferred from the URL;
// the caller sets it for YouTube references that point at a live stream.
func Classify(raw string, live bool) (Source, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return Source{}, fmt.Errorf("%w: empty reference", ErrInvalidSource)
	}

	if IsYouTube(ref) {
		kind := models.SourceYouTubeVideo
		if live {
			kind = models.SourceYouTubeLive
		}
		return Source{Kind: kind, Ref: ref}, nil
	}

	if u, ok := parseHTTP(ref); ok {
		if isLookalike(u.Host) {
			return Source{}, fmt.Errorf("%w: %q looks like YouTube but is not a recognized YouTube URL", ErrInvalidSource, ref)
		}
		if live {
			return Source{}, fmt.Errorf("%w: live mode requires a YouTube URL", ErrInvalidSource)
		}
		return Source{Kind: models.SourceDirectStream, Ref: ref}, nil
	}

	if err := checkFile(ref); err != nil {
		return Source{}, err
	}
	return Source{Kind: models.SourceAudioFile, Ref: ref}, nil
}

// ClassifyKind validates ref against an explicitly requested kind.
func ClassifyKind(kind models.SourceKind, raw string) (Source, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return Source{}, fmt.Errorf("%w: empty reference", ErrInvalidSource)
	}

	switch kind {
	case models.SourceYouTubeVideo, models.SourceYouTubeLive:
		if !IsYouTube(ref) {
			return Source{}, fmt.Errorf("%w: %q is not a YouTube URL", ErrInvalidSource, ref)
		}
	case models.SourceDirectStream:
		u, ok := parseHTTP(ref)
		if !ok {
			return Source{}, fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidSource, ref)
		}
		if isLookalike(u.Host) && !IsYouTube(ref) {
			return Source{}, fmt.Errorf("%w: %q looks like YouTube but is not a recognized YouTube URL", ErrInvalidSource, ref)
		}
	case models.SourceAudioFile:
		if err := checkFile(ref); err != nil {
			return Source{}, err
		}
	default:
		return Source{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidSource, kind)
	}
	return Source{Kind: kind, Ref: ref}, nil
}

// IsYouTube reports whether ref matches the YouTube URL pattern.
func IsYouTube(ref string) bool {
	return youtubePattern.MatchString(ref)
}

func parseHTTP(ref string) (*url.URL, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}

func isLookalike(host string) bool {
	h := strings.ToLower(host)
	return strings.Contains(h, "youtube") || strings.Contains(h, "youtu.be")
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %q is not a URL or accessible file", ErrInvalidSource, path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %q is not a regular file", ErrInvalidSource, path)
	}
	return nil
}
