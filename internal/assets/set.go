package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"foundry/internal/services"
)

var (
	mediaPattern     = regexp.MustCompile(`(?i)^(\d+)\.(png|jpg|jpeg|gif)$`)
	animationPattern = regexp.MustCompile(`(?i)^(\d+)\.(mp4|mov|webm)$`)
	metadataPattern  = regexp.MustCompile(`^(\d+)\.json$`)
)

// Pair describes one validated asset: its media file, metadata file, and
// optional animation file, with content hashes and declared sizes.
type Pair struct {
	Index         int
	Name          string
	MediaPath     string
	MediaHash     string
	MediaSize     int64
	MetadataPath  string
	MetadataHash  string
	MetadataSize  int64
	AnimationPath string
	AnimationHash string
	AnimationSize int64
}

// HasAnimation reports whether the pair carries an animation file.
func (p Pair) HasAnimation() bool { return p.AnimationPath != "" }

// MediaContentType returns the MIME type for the media file.
func (p Pair) MediaContentType() string { return contentTypeFor(p.MediaPath) }

// AnimationContentType returns the MIME type for the animation file.
func (p Pair) AnimationContentType() string { return contentTypeFor(p.AnimationPath) }

// Set is the validated, ordered, read-only collection of asset pairs.
type Set struct {
	dir   string
	pairs []Pair
}

// Dir returns the scanned assets directory.
func (s *Set) Dir() string { return s.dir }

// Len returns the number of asset pairs.
func (s *Set) Len() int { return len(s.pairs) }

// Pair returns the pair at the given index.
func (s *Set) Pair(index int) (Pair, bool) {
	if index < 0 || index >= len(s.pairs) {
		return Pair{}, false
	}
	return s.pairs[index], true
}

// Pairs returns the pairs in index order. The returned slice is a copy.
func (s *Set) Pairs() []Pair {
	cp := make([]Pair, len(s.pairs))
	copy(cp, s.pairs)
	return cp
}

// TotalUploadBytes sums the declared sizes of every file the set would
// upload. Used for pre-flight cost estimation.
func (s *Set) TotalUploadBytes() int64 {
	var total int64
	for _, pair := range s.pairs {
		total += pair.MediaSize + pair.MetadataSize + pair.AnimationSize
	}
	return total
}

// Scan reads the assets directory, pairs media with metadata by index,
// hashes file contents, and validates that indices are contiguous from zero.
// Any structural problem is a validation error: the pipeline must not start.
func Scan(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "assets", "scan", fmt.Sprintf("read assets directory %q", dir), err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}

	media := make(map[int]string)
	animations := make(map[int]string)
	metadata := make(map[int]string)
	for _, name := range names {
		if m := metadataPattern.FindStringSubmatch(name); m != nil {
			index, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, services.Wrap(services.ErrValidation, "assets", "scan", fmt.Sprintf("parse index from %q", name), err)
			}
			metadata[index] = name
			continue
		}
		if m := mediaPattern.FindStringSubmatch(name); m != nil {
			index, _ := strconv.Atoi(m[1])
			if existing, collides := media[index]; collides {
				return nil, services.Wrap(services.ErrValidation, "assets", "scan",
					fmt.Sprintf("index %d has multiple media files (%s, %s)", index, existing, name), nil)
			}
			media[index] = name
			continue
		}
		if m := animationPattern.FindStringSubmatch(name); m != nil {
			index, _ := strconv.Atoi(m[1])
			animations[index] = name
		}
	}

	if len(metadata) == 0 {
		return nil, services.Wrap(services.ErrValidation, "assets", "scan",
			fmt.Sprintf("no metadata files found in %q", dir), nil)
	}

	indices := make([]int, 0, len(metadata))
	for index := range metadata {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	for position, index := range indices {
		if index != position {
			return nil, services.Wrap(services.ErrValidation, "assets", "scan",
				fmt.Sprintf("indices are not contiguous from 0: missing index %d", position), nil)
		}
	}

	pairs := make([]Pair, 0, len(indices))
	for _, index := range indices {
		mediaName, ok := media[index]
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "assets", "scan",
				fmt.Sprintf("index %d has metadata but no media file", index), nil)
		}

		pair := Pair{
			Index:        index,
			MediaPath:    filepath.Join(dir, mediaName),
			MetadataPath: filepath.Join(dir, metadata[index]),
		}
		if animationName, ok := animations[index]; ok {
			pair.AnimationPath = filepath.Join(dir, animationName)
		}

		name, err := metadataName(pair.MetadataPath)
		if err != nil {
			return nil, err
		}
		pair.Name = name

		if pair.MediaHash, pair.MediaSize, err = hashFile(pair.MediaPath); err != nil {
			return nil, err
		}
		if pair.MetadataHash, pair.MetadataSize, err = hashFile(pair.MetadataPath); err != nil {
			return nil, err
		}
		if pair.HasAnimation() {
			if pair.AnimationHash, pair.AnimationSize, err = hashFile(pair.AnimationPath); err != nil {
				return nil, err
			}
		}

		pairs = append(pairs, pair)
	}

	return &Set{dir: dir, pairs: pairs}, nil
}

func metadataName(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "assets", "scan", fmt.Sprintf("open metadata %q", path), err)
	}
	defer file.Close()

	var parsed struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(file).Decode(&parsed); err != nil {
		return "", services.Wrap(services.ErrValidation, "assets", "scan", fmt.Sprintf("parse metadata %q", path), err)
	}
	if strings.TrimSpace(parsed.Name) == "" {
		return "", services.Wrap(services.ErrValidation, "assets", "scan", fmt.Sprintf("metadata %q has no name", path), nil)
	}
	return parsed.Name, nil
}

func hashFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, services.Wrap(services.ErrValidation, "assets", "hash", fmt.Sprintf("open %q", path), err)
	}
	defer file.Close()

	digest := sha256.New()
	size, err := io.Copy(digest, file)
	if err != nil {
		return "", 0, services.Wrap(services.ErrValidation, "assets", "hash", fmt.Sprintf("read %q", path), err)
	}
	return hex.EncodeToString(digest.Sum(nil)), size, nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
