package local

import "fmt"

type Language string

const (
	Eng = Language("en")
	Rus = Language("ru")
)

// ParseLanguage maps a locale such as "en-US" or "ru" to a supported language.
func ParseLanguage(s string) Language {
	if len(s) >= 2 {
		switch Language(s[:2]) {
		case Eng:
			return Eng
		case Rus:
			return Rus
		}
	}
	return Rus
}

type Localization struct {
	language Language
	text     string
}

type TextSet struct {
	Default          string
	translationsText map[Language]string
}

func NewTrans(language Language, text string) Localization {
	return Localization{
		language: language,
		text:     text,
	}
}

func NewSet(defaultText string, localizations ...Localization) TextSet {
	set := TextSet{
		Default:          defaultText,
		translationsText: make(map[Language]string),
	}
	for _, localization := range localizations {
		set.translationsText[localization.language] = localization.text
	}
	return set
}

func (l TextSet) Text(language Language) string {
	if text, ok := l.translationsText[language]; ok {
		return text
	}
	return l.Default
}

func (l TextSet) Format(language Language, a ...any) string {
	return fmt.Sprintf(l.Text(language), a...)
}
