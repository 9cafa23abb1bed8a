package usecase

import (
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/iamvkosarev/lingro/config"
)

const MinSearchTermLength = 3

var (
	imageTriggers = []string{
		"фото", "картинк", "изображен", "фотограф",
		"image", "photo", "picture",
	}

	wordPattern   = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	fillerPattern = regexp.MustCompile(
		`^(?:` +
			`найди|покажи|можешь|пришли|искать|ищи|изображен(?:ие|ий|ию|ия)?|фото|картинки?|фотограф(?:ию|ия)?|просьба|` +
			`find|show|could|please|search|me|pictures?|images?|photos?|of` +
			`)$`,
	)
)

type ImageProvider interface {
	SearchImages(ctx context.Context, query string, limit int) ([]string, error)
}

type ImageUsecaseDeps struct {
	Provider ImageProvider
	Logger   *log.Logger
}

type ImageUsecase struct {
	ImageUsecaseDeps
	cfg config.Search
}

func NewImageUsecase(deps ImageUsecaseDeps, cfg config.Search) *ImageUsecase {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	return &ImageUsecase{
		ImageUsecaseDeps: deps,
		cfg:              cfg,
	}
}

// SearchImages returns at most the configured number of image URLs for term.
// Provider failures are logged and reported as no results.
func (i *ImageUsecase) SearchImages(ctx context.Context, term string) []string {
	urls, err := i.Provider.SearchImages(ctx, term, i.cfg.MaxResults)
	if err != nil {
		i.Logger.Warn("image search failed", "term", term, "error", err)
		return []string{}
	}
	if len(urls) > i.cfg.MaxResults {
		urls = urls[:i.cfg.MaxResults]
	}
	return urls
}

// IsImageRequest reports whether text asks for a picture.
func IsImageRequest(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, trigger := range imageTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// ExtractSearchTerm strips request filler such as "найди фото" or "show me a
// picture of" and returns what is left. It never returns an empty string for
// non-empty input.
func ExtractSearchTerm(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	stripped := wordPattern.ReplaceAllStringFunc(
		lower, func(word string) string {
			if fillerPattern.MatchString(word) {
				return " "
			}
			return word
		},
	)
	if term := strings.Join(strings.Fields(stripped), " "); term != "" {
		return term
	}
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		return trimmed
	}
	return text
}
