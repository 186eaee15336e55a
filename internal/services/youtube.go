package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/autovid/autovid/internal/models"
)

// ---------------------------------------------------------------------------
// YouTube Upload Service
// Uploads the final video via YouTube Data API v3 with a refresh-token
// OAuth flow. Optional: when credentials are absent the CDN delivery stage
// skips the upload leg.
// ---------------------------------------------------------------------------

type YouTubeService struct {
	clientID     string
	clientSecret string
	refreshToken string
}

// NewYouTubeService reads OAuth credentials from the environment. Returns
// nil when they are not configured; callers treat a nil service as
// "upload disabled".
func NewYouTubeService() *YouTubeService {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil
	}
	return &YouTubeService{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
	}
}

// Upload pushes the video and its metadata and returns the published URL.
func (s *YouTubeService) Upload(ctx context.Context, videoPath, thumbnailPath string, meta *models.Metadata) (string, error) {
	conf := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: s.refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	client := oauth2.NewClient(ctx, conf.TokenSource(ctx, token))

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", fmt.Errorf("failed to create youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  "27", // Education
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           "private",
			SelfDeclaredMadeForKids: false,
		},
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		log.Printf("[YouTube] Uploading %q (%.1f MB)", meta.Title, float64(fi.Size())/1024/1024)
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload failed: %w", err)
	}

	if thumbnailPath != "" {
		if thumb, err := os.Open(thumbnailPath); err == nil {
			if _, err := svc.Thumbnails.Set(uploaded.Id).Media(thumb).Do(); err != nil {
				log.Printf("[YouTube] Thumbnail upload failed (video kept): %v", err)
			}
			thumb.Close()
		}
	}

	url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.Id)
	log.Printf("[YouTube] Uploaded: %s", url)
	return url, nil
}
