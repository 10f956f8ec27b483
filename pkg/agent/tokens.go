package agent

import (
	"strings"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

const (
	// approxCharsPerToken is the same coarse text-token heuristic used
	// wherever an exact tokenizer isn't wired in: ~4 characters per token.
	approxCharsPerToken = 4

	// imageBaseTokens is the fixed cost of any inline image, independent of
	// its resolution, mirroring the flat per-image charge real multimodal
	// tokenizers apply before per-tile costs.
	imageBaseTokens = 85

	// imageTileTokens is the additional cost per tile of image data.
	imageTileTokens = 170

	// imageBytesPerTile roughly buckets inline image size into tiles; this
	// is intentionally coarse since we don't have decoded pixel dimensions.
	imageBytesPerTile = 512 * 1024

	// videoBytesPerToken approximates motion-video token cost: roughly one
	// token per 250 bytes of encoded data.
	videoBytesPerToken = 250
)

// CalculateSessionContextTokens estimates the token cost of a span of
// conversation events. Text and inline images/video contribute; audio is
// currently skipped (spec.md §4.6).
func CalculateSessionContextTokens(events []ConversationEvent) int {
	total := 0
	for _, evt := range events {
		for _, part := range evt.Parts {
			total += partTokens(part)
		}
	}
	return total
}

func partTokens(part types.Part) int {
	switch part.Kind {
	case types.PartKindText:
		return textTokens(part.Text)
	case types.PartKindFile:
		if part.File == nil {
			return 0
		}
		return fileTokens(part.File.MimeType, len(part.File.Bytes))
	default:
		return 0
	}
}

func textTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + approxCharsPerToken - 1) / approxCharsPerToken
}

func fileTokens(mimeType string, size int) int {
	if size == 0 {
		return 0
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return imageTokens(size)
	case strings.HasPrefix(mimeType, "video/"):
		return videoTokens(size)
	case strings.HasPrefix(mimeType, "audio/"):
		// Audio is not yet supported by the downstream token counter;
		// skipped rather than estimated, matching original_source's
		// runner.py behavior.
		return 0
	default:
		return 0
	}
}

func imageTokens(size int) int {
	tiles := size / imageBytesPerTile
	if tiles < 1 {
		tiles = 1
	}
	return imageBaseTokens + tiles*imageTileTokens
}

func videoTokens(size int) int {
	return size / videoBytesPerToken
}
