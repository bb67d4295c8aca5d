package media

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Category is the coarse kind of a resolved piece of content. It decides
// whether a reference is downloaded at all and how the handle is displayed.
type Category string

const (
	CategoryText  Category = "text"
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
)

var extCategories = map[string]Category{
	".png":  CategoryImage,
	".jpg":  CategoryImage,
	".jpeg": CategoryImage,
	".gif":  CategoryImage,
	".webp": CategoryImage,
	".mp4":  CategoryVideo,
	".mov":  CategoryVideo,
	".webm": CategoryVideo,
	".txt":  CategoryText,
	".md":   CategoryText,
	".json": CategoryText,
}

// categoryForKey infers the category from the object key extension. The
// zero value is returned when the extension is unknown.
func categoryForKey(key string) Category {
	return extCategories[strings.ToLower(path.Ext(key))]
}

// categoryForData sniffs the content when the key carries no usable
// extension. Anything that is neither image nor video is treated as text.
func categoryForData(data []byte) Category {
	mt := mimetype.Detect(data)
	switch {
	case strings.HasPrefix(mt.String(), "image/"):
		return CategoryImage
	case strings.HasPrefix(mt.String(), "video/"):
		return CategoryVideo
	default:
		return CategoryText
	}
}
