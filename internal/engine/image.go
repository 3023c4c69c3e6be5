package engine

import "strings"

// NormalizeImage strips the @sha256:... digest suffix from a Docker image reference.
// Docker appends the resolved digest to image references after pulling, which can
// cause false mismatches when comparing desired vs actual images.
func NormalizeImage(image string) string {
	if idx := strings.Index(image, "@sha256:"); idx != -1 {
		return image[:idx]
	}
	return image
}
