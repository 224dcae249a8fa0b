package server

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// metadataValue returns the first non-blank value for key in the incoming metadata.
func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(key) {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// resolveLanguage picks the request language, falling back to the configured
// default and finally to auto-detection.
func resolveLanguage(requested, configured string) string {
	if lang := strings.ToLower(strings.TrimSpace(requested)); lang != "" {
		return lang
	}
	if lang := strings.ToLower(strings.TrimSpace(configured)); lang != "" {
		return lang
	}
	return "auto"
}
