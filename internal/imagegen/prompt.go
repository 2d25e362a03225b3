package imagegen

import (
	"fmt"
	"strings"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
)

const defaultStyle = "soft children's book illustration, gentle colors"

// styleCatalog - описания известных стилей иллюстраций.
var styleCatalog = map[string]string{
	"watercolor":   "watercolor children's book illustration, soft washes of color, paper texture",
	"cartoon":      "bright cartoon illustration, bold clean outlines, flat cheerful colors",
	"pencil":       "hand-drawn colored pencil illustration, warm textured strokes",
	"3d":           "cute 3D rendered illustration, soft studio lighting, rounded shapes",
	"anime":        "gentle anime style illustration, expressive eyes, pastel palette",
	"flat":         "flat vector illustration, simple geometric shapes, limited palette",
	"oil-painting": "classic oil painting fairy tale illustration, rich colors, visible brush strokes",
}

const technicalConstraints = "high quality, consistent character proportions, child-friendly, no text, no letters, no watermark"

// StyleDescriptor возвращает описание стиля. Неизвестный стиль используется как есть.
func StyleDescriptor(style string) string {
	key := strings.ToLower(strings.TrimSpace(style))
	if key == "" {
		return defaultStyle
	}
	if desc, ok := styleCatalog[key]; ok {
		return desc
	}
	return strings.TrimSpace(style) + " illustration"
}

// settingHints - окружение героя по языку истории.
var settingHints = map[models.Language]string{
	models.LanguageRU: "in a cozy Russian fairy tale setting",
	models.LanguageEN: "in a classic storybook setting",
	models.LanguageKZ: "in a Kazakh steppe fairy tale setting",
}

// CharacterIdentity описывает только самого героя, без сцены и стиля.
func CharacterIdentity(p interfaces.ImagePrompt) string {
	who := fmt.Sprintf("a %d-year-old child", p.ChildAge)
	if name := strings.TrimSpace(p.ChildName); name != "" {
		who = name + ", " + who
	}
	identity := who + ", the hero of the story, with a distinctive and memorable look that stays the same on every page"
	if hint, ok := settingHints[p.Language]; ok {
		identity += ", " + hint
	}
	return identity
}

// CharacterDescription возвращает слой персонажа. С референсом описание
// берется из него, ссылка на картинку только если картинка передается бэкенду.
func CharacterDescription(p interfaces.ImagePrompt, ref *models.CharacterReference) string {
	if ref != nil && strings.TrimSpace(ref.Description) != "" {
		if len(ref.Data) > 0 {
			return "the same main character as in the reference image: " + strings.TrimSpace(ref.Description)
		}
		return "the same main character as on the previous pages: " + strings.TrimSpace(ref.Description)
	}
	return "main character: " + CharacterIdentity(p)
}

// PromptBuilder собирает промпт иллюстрации в фиксированном порядке слоев:
// стиль, персонаж, сцена, технические требования.
type PromptBuilder struct {
	styleSuffix string
}

// NewPromptBuilder создает PromptBuilder. styleSuffix дописывается к техническому слою.
func NewPromptBuilder(styleSuffix string) PromptBuilder {
	return PromptBuilder{styleSuffix: strings.TrimSpace(styleSuffix)}
}

// Build возвращает готовый промпт.
func (b PromptBuilder) Build(p interfaces.ImagePrompt, ref *models.CharacterReference) string {
	scene := strings.TrimSpace(p.Scene)
	if scene == "" {
		scene = "the hero in a calm fairy tale setting"
	}
	technical := technicalConstraints
	if b.styleSuffix != "" {
		technical += ", " + b.styleSuffix
	}
	layers := []string{
		StyleDescriptor(p.Style),
		CharacterDescription(p, ref),
		"scene: " + scene,
		technical,
	}
	return strings.Join(layers, ". ")
}
