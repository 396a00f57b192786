package agent

import (
	"context"
	"strings"

	"github.com/jodi-app/jodi-server/internal/db"
	"github.com/jodi-app/jodi-server/internal/errors"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/repository"
)

// A photo needs at least this quality score to be approved.
const minPhotoQuality = 0.5

var nsfwHints = []string{"nsfw", "nude", "xxx", "porn", "explicit"}

// ImageAgent verifies uploaded photos: a content safety pass, a face
// presence check and a quality score from the upload metadata. The verdict
// is written back to the photo row, and an approved photo with a face marks
// the profile photo-verified.
type ImageAgent struct {
	profiles *repository.ProfileRepository
}

func NewImageAgent(profiles *repository.ProfileRepository) *ImageAgent {
	return &ImageAgent{profiles: profiles}
}

func (a *ImageAgent) Name() string    { return "image_verification" }
func (a *ImageAgent) Version() string { return "1.0" }

func (a *ImageAgent) Handles() []string {
	return []string{"verify_photo", "moderate_image", "check_face"}
}

func (a *ImageAgent) Process(ctx context.Context, task Task) (*Outcome, error) {
	switch task.Action {
	case "verify_photo":
		return a.verifyPhoto(ctx, task)
	case "moderate_image":
		imageURL, _ := task.Payload["image_url"].(string)
		mimeType, _ := task.Payload["mime_type"].(string)
		m := moderateImage(imageURL, mimeType)
		return &Outcome{Data: map[string]any{
			"is_safe":    m.safe,
			"nsfw_score": m.nsfwScore,
			"flags":      m.flags,
		}}, nil
	case "check_face":
		face := checkFace(task.Payload)
		return &Outcome{Data: map[string]any{
			"has_face":   face.hasFace,
			"face_count": face.count,
		}}, nil
	}
	return nil, errors.InvalidArgument("image agent cannot handle %s", task.Action)
}

func (a *ImageAgent) verifyPhoto(ctx context.Context, task Task) (*Outcome, error) {
	photoID, _ := task.Payload["photo_id"].(string)
	if photoID == "" {
		return nil, errors.InvalidArgument("photo_id is required")
	}
	photo, err := a.profiles.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if task.UserID != "" && photo.UserID != task.UserID {
		return nil, errors.PermissionDenied("photo belongs to another user")
	}

	moderation := moderateImage(photo.URL, photo.MimeType)
	face := checkFace(task.Payload)
	quality := qualityScore(task.Payload)

	approved := moderation.safe && face.hasFace && quality > minPhotoQuality

	flags := append([]string{}, moderation.flags...)
	if !face.hasFace {
		flags = append(flags, "no_face_detected")
	}
	if quality <= minPhotoQuality {
		flags = append(flags, "poor_quality")
	}

	status := db.ModerationRejected
	if approved {
		status = db.ModerationApproved
	}
	if err := a.profiles.ModeratePhoto(ctx, photo.ID, status, moderation.nsfwScore); err != nil {
		return nil, err
	}
	if approved {
		if err := a.profiles.Update(ctx, photo.UserID, map[string]any{"is_photo_verified": true}); err != nil {
			logger.Warn("mark photo verified", "user_id", photo.UserID, "error", err)
		}
	}

	return &Outcome{Data: map[string]any{
		"photo_id":      photo.ID,
		"is_approved":   approved,
		"has_face":      face.hasFace,
		"face_count":    face.count,
		"nsfw_score":    moderation.nsfwScore,
		"quality_score": quality,
		"flags":         flags,
	}}, nil
}

type imageModeration struct {
	safe      bool
	nsfwScore float64
	flags     []string
}

// moderateImage is the heuristic safety pass. Without a vision backend it
// screens the mime type and URL for obvious red flags.
func moderateImage(imageURL, mimeType string) imageModeration {
	m := imageModeration{safe: true}
	if mimeType != "" && !strings.HasPrefix(mimeType, "image/") {
		m.safe = false
		m.flags = append(m.flags, "not_an_image")
	}
	lower := strings.ToLower(imageURL)
	for _, hint := range nsfwHints {
		if strings.Contains(lower, hint) {
			m.safe = false
			m.nsfwScore = 0.9
			m.flags = append(m.flags, "adult_content")
			break
		}
	}
	return m
}

type faceCheck struct {
	hasFace bool
	count   int
}

// checkFace trusts the upload pipeline's detector output when present and
// assumes a single face otherwise.
func checkFace(payload map[string]any) faceCheck {
	if n, ok := payload["face_count"].(float64); ok {
		return faceCheck{hasFace: n >= 1, count: int(n)}
	}
	return faceCheck{hasFace: true, count: 1}
}

// qualityScore rates the upload from its metadata: resolution, file size
// and the client's blur flag.
func qualityScore(payload map[string]any) float64 {
	width, _ := payload["width"].(float64)
	height, _ := payload["height"].(float64)
	size, _ := payload["file_size_bytes"].(float64)
	blurry, _ := payload["is_blurry"].(bool)

	score := 0.5
	switch {
	case width >= 1080 && height >= 1080:
		score += 0.2
	case width >= 640 && height >= 640:
		score += 0.1
	}
	if size >= 50_000 && size <= 5_000_000 {
		score += 0.1
	}
	if !blurry {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}
