package assets

import (
	"encoding/json"
	"fmt"
	"os"

	"foundry/internal/services"
)

// RewriteMetadata loads a metadata file and substitutes the uploaded media
// locators into it: the top-level image field and the first properties file
// entry point at mediaLink, and when animationLink is non-empty the
// animation_url field and second properties file entry point at it. All
// other fields pass through untouched.
func RewriteMetadata(metadataPath, mediaLink, animationLink string) ([]byte, error) {
	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "assets", "rewrite", fmt.Sprintf("read metadata %q", metadataPath), err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, services.Wrap(services.ErrValidation, "assets", "rewrite", fmt.Sprintf("parse metadata %q", metadataPath), err)
	}

	doc["image"] = mediaLink
	setPropertiesFileURI(doc, 0, mediaLink)
	if animationLink != "" {
		doc["animation_url"] = animationLink
		setPropertiesFileURI(doc, 1, animationLink)
	}

	rewritten, err := json.Marshal(doc)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "assets", "rewrite", fmt.Sprintf("encode metadata %q", metadataPath), err)
	}
	return rewritten, nil
}

func setPropertiesFileURI(doc map[string]any, position int, uri string) {
	properties, ok := doc["properties"].(map[string]any)
	if !ok {
		return
	}
	files, ok := properties["files"].([]any)
	if !ok || position >= len(files) {
		return
	}
	entry, ok := files[position].(map[string]any)
	if !ok {
		return
	}
	entry["uri"] = uri
}
