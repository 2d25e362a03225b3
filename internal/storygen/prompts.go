package storygen

import (
	"fmt"
	"strings"

	"fairytale-server/internal/models"
)

// AgeBand - возрастная группа читателя, от нее зависит стиль текста.
type AgeBand int

const (
	AgeBandToddler     AgeBand = iota // 2-4
	AgeBandEarlyReader                // 5-7
	AgeBandIndependent                // 8-12
)

// AgeBandFor возвращает возрастную группу для возраста.
func AgeBandFor(age int) AgeBand {
	switch {
	case age <= 4:
		return AgeBandToddler
	case age <= 7:
		return AgeBandEarlyReader
	default:
		return AgeBandIndependent
	}
}

func (b AgeBand) String() string {
	switch b {
	case AgeBandToddler:
		return "toddler"
	case AgeBandEarlyReader:
		return "early_reader"
	default:
		return "independent_reader"
	}
}

func (b AgeBand) writingRules() string {
	switch b {
	case AgeBandToddler:
		return "The listener is a toddler. Use exactly one very short sentence per page (3 to 7 words). " +
			"Use only simple everyday words and gentle repetition. No scary moments."
	case AgeBandEarlyReader:
		return "The reader is just learning to read. Use one or two short sentences per page (up to 12 words each). " +
			"Use familiar vocabulary, clear cause and effect, a light gentle conflict."
	default:
		return "The reader reads independently. Use up to two sentences per page with richer vocabulary, " +
			"some descriptive detail and a small real challenge that the hero overcomes."
	}
}

var languageNames = map[models.Language]string{
	models.LanguageRU: "Russian",
	models.LanguageEN: "English",
	models.LanguageKZ: "Kazakh",
}

// themeCatalog - локализованные описания известных тем.
var themeCatalog = map[string]map[models.Language]string{
	"character-courage": {
		models.LanguageEN: "being brave even when you are scared",
		models.LanguageRU: "быть смелым, даже когда страшно",
		models.LanguageKZ: "қорқып тұрсаң да батыл болу",
	},
	"friendship": {
		models.LanguageEN: "the value of true friendship",
		models.LanguageRU: "настоящая дружба дороже всего",
		models.LanguageKZ: "шынайы достықтың құндылығы",
	},
	"kindness": {
		models.LanguageEN: "being kind to others",
		models.LanguageRU: "доброта к другим",
		models.LanguageKZ: "басқаларға мейірімді болу",
	},
	"honesty": {
		models.LanguageEN: "telling the truth",
		models.LanguageRU: "говорить правду",
		models.LanguageKZ: "әрқашан шындықты айту",
	},
	"curiosity": {
		models.LanguageEN: "curiosity and discovering the world",
		models.LanguageRU: "любознательность и открытие мира",
		models.LanguageKZ: "әлемді тануға деген қызығушылық",
	},
	"sharing": {
		models.LanguageEN: "sharing with others",
		models.LanguageRU: "умение делиться",
		models.LanguageKZ: "басқалармен бөлісе білу",
	},
	"nature": {
		models.LanguageEN: "caring for nature and animals",
		models.LanguageRU: "забота о природе и животных",
		models.LanguageKZ: "табиғат пен жануарларға қамқорлық",
	},
	"family": {
		models.LanguageEN: "love and support in a family",
		models.LanguageRU: "любовь и поддержка в семье",
		models.LanguageKZ: "отбасындағы сүйіспеншілік пен қолдау",
	},
}

// LocalizedTheme возвращает описание темы на языке истории.
// Неизвестная тема возвращается как есть.
func LocalizedTheme(theme string, lang models.Language) string {
	key := strings.ToLower(strings.TrimSpace(theme))
	if byLang, ok := themeCatalog[key]; ok {
		if desc, ok := byLang[lang]; ok {
			return desc
		}
		return byLang[models.LanguageEN]
	}
	return strings.TrimSpace(theme)
}

const responseSchema = `{
  "title": "string",
  "pages": [
    {"text": "string, the page text in the story language", "imagePrompt": "string, an English description of the illustration for this page"}
  ],
  "moral": "string, one sentence in the story language"
}`

// BuildSystemPrompt собирает системный промпт для генерации истории.
func BuildSystemPrompt(req models.StoryRequest) string {
	band := AgeBandFor(req.ChildAge)
	langName := languageNames[req.Language]

	var b strings.Builder
	b.WriteString("You are a children's book author who writes warm, age-appropriate illustrated fairy tales.\n")
	fmt.Fprintf(&b, "Write the whole story in %s. Only imagePrompt values are written in English.\n", langName)
	b.WriteString(band.writingRules())
	b.WriteString("\n")
	fmt.Fprintf(&b, "The story must have exactly %d pages.\n", req.PageCount)
	b.WriteString("The main hero is the child from the request; keep the hero's appearance consistent across pages.\n")
	b.WriteString("Each imagePrompt describes only the scene: setting, action, other characters. Do not describe art style.\n")
	b.WriteString("Respond with a single JSON object and nothing else, matching this schema:\n")
	b.WriteString(responseSchema)
	return b.String()
}

// BuildUserPrompt собирает пользовательский промпт с параметрами заказа.
// seed уже должен быть обрезан по токенам.
func BuildUserPrompt(req models.StoryRequest, seed string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hero name: %s\n", req.ChildName)
	fmt.Fprintf(&b, "Hero age: %d\n", req.ChildAge)
	fmt.Fprintf(&b, "Theme: %s\n", LocalizedTheme(req.Theme, req.Language))
	fmt.Fprintf(&b, "Pages: %d\n", req.PageCount)
	if seed != "" {
		fmt.Fprintf(&b, "Story idea from the parent: %s\n", seed)
	}
	return b.String()
}

// BuildCorrectionPrompt просит модель исправить число страниц.
func BuildCorrectionPrompt(req models.StoryRequest, seed string, gotPages int, previous string) string {
	var b strings.Builder
	b.WriteString(BuildUserPrompt(req, seed))
	fmt.Fprintf(&b, "\nYour previous answer had %d pages, but exactly %d pages are required.\n", gotPages, req.PageCount)
	b.WriteString("Rewrite the story so that it has exactly the required number of pages. Previous answer:\n")
	b.WriteString(previous)
	return b.String()
}
