package receipt

import (
	"strings"
	"time"
)

// LocalRefPrefix marks a reference to a receipt staged on this device that
// has not reached the backend yet
const LocalRefPrefix = "local:"

// MaxSize is the largest receipt file accepted
const MaxSize = 5 << 20

// AllowedContentTypes are the receipt formats accepted for upload
var AllowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/heic",
	"image/heif",
	"application/pdf",
}

// Receipt describes an attached receipt file
type Receipt struct {
	Ref         string    `json:"ref"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Staged reports whether the receipt only exists on this device
func (r *Receipt) Staged() bool {
	return IsLocalRef(r.Ref)
}

// IsLocalRef reports whether ref names a locally staged receipt
func IsLocalRef(ref string) bool {
	return strings.HasPrefix(ref, LocalRefPrefix) && len(ref) > len(LocalRefPrefix)
}
