package campaign

import (
	"fmt"
	"strings"
)

// AdType values used by the content generation stage.
const (
	AdTypeText  = "text_ad"
	AdTypeImage = "image_ad"
	AdTypeVideo = "video_ad"
)

// AssetsFromResult extracts the generated assets from a content generation
// stage result. The payload carries an "ads" array; each ad becomes one
// Asset. Ads whose content points into the content store ("s3://..." or
// "https://...") become remote assets, everything else is inline text.
// Results for other stages yield no assets.
func AssetsFromResult(r StageResult) []Asset {
	if r.Stage != StageContentGeneration {
		return nil
	}

	ads, ok := r.Payload["ads"].([]any)
	if !ok {
		return nil
	}

	assets := make([]Asset, 0, len(ads))
	for i, raw := range ads {
		ad, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		asset := Asset{
			ID:    stringField(ad, "asset_id"),
			Stage: r.Stage,
		}
		if asset.ID == "" {
			if id := stringField(ad, "id"); id != "" {
				asset.ID = "ad_" + id
			} else {
				asset.ID = fmt.Sprintf("ad_%d", i)
			}
		}

		content := stringField(ad, "content")
		if isRemoteReference(content) {
			asset.Kind = AssetRemote
			asset.Reference = content
		} else {
			asset.Kind = AssetInline
			asset.Content = content
		}

		assets = append(assets, asset)
	}
	return assets
}

func isRemoteReference(content string) bool {
	return strings.HasPrefix(content, "s3://") || strings.HasPrefix(content, "https://")
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
