package storygen

import (
	"fmt"
	"strings"

	"fairytale-server/internal/models"
)

type fallbackBeat struct {
	text        string
	imagePrompt string
}

type fallbackSkeleton struct {
	title  string
	moral  string
	single string
	beats  []string
}

// Сцены иллюстраций общие для всех языков.
var fallbackScenes = []string{
	"the hero standing in front of a small cozy house in the morning light",
	"the hero waking up in a bright bedroom, sunlight through the window",
	"the hero walking along a path towards a green forest",
	"the hero meeting a small sad fox on a forest path",
	"the hero kneeling next to the lost little fox, offering help",
	"the hero and the fox crossing a stream on stepping stones",
	"the hero helping the fox over a difficult spot, determined expression",
	"a cozy fox den under a big old oak tree",
	"the fox family hugging the hero, warm evening light",
	"the hero walking home happily at sunset",
}

const fallbackSingleScene = "the hero and a little fox standing together in front of a cozy fox den under an old oak tree"

var fallbackSkeletons = map[models.Language]fallbackSkeleton{
	models.LanguageEN: {
		title:  "{name} and the Lost Fox",
		moral:  "Always remember: {theme}.",
		single: "{name} helps a lost little fox find its way home and learns what matters most: {theme}.",
		beats: []string{
			"Once upon a time there lived a child named {name}.",
			"One morning {name} woke up and felt that today would be special.",
			"{name} set off on a walk to the edge of the green forest.",
			"On the path {name} met a little fox who looked very sad.",
			"The fox had lost its way home, and {name} wanted to help.",
			"Together they crossed a noisy stream on slippery stones.",
			"It was not easy, but {name} remembered what matters most: {theme}.",
			"At last they found the fox's cozy home under an old oak.",
			"The fox's family thanked their new friend with a warm hug.",
			"{name} went home smiling and never forgot: {theme}.",
		},
	},
	models.LanguageRU: {
		title:  "{name} и потерявшийся лисенок",
		moral:  "Всегда помни: {theme}.",
		single: "{name} помогает потерявшемуся лисенку найти дом и понимает самое главное: {theme}.",
		beats: []string{
			"Жил-был на свете ребенок по имени {name}.",
			"Однажды утром {name} просыпается и чувствует: сегодня будет особенный день.",
			"{name} отправляется гулять к опушке зеленого леса.",
			"На тропинке {name} встречает маленького грустного лисенка.",
			"Лисенок потерял дорогу домой, и {name} хочет ему помочь.",
			"Вместе они переходят шумный ручей по скользким камням.",
			"Это нелегко, но {name} помнит самое главное: {theme}.",
			"Наконец они находят уютную нору лисенка под старым дубом.",
			"Семья лисенка благодарит нового друга теплыми объятиями.",
			"{name} идет домой с улыбкой и не забывает: {theme}.",
		},
	},
	models.LanguageKZ: {
		title:  "{name} және адасқан түлкі",
		moral:  "Әрқашан есіңде болсын: {theme}.",
		single: "{name} адасқан кішкентай түлкіге үйін табуға көмектесіп, ең бастысын түсінді: {theme}.",
		beats: []string{
			"Ерте, ерте, ертеде {name} есімді бала өмір сүріпті.",
			"Бір күні таңертең {name} оянып, бүгін ерекше күн болатынын сезді.",
			"{name} жасыл орманның шетіне серуенге шықты.",
			"Соқпақта {name} мұңайып отырған кішкентай түлкіні кездестірді.",
			"Түлкі үйіне баратын жолды жоғалтып алыпты, ал {name} оған көмектескісі келді.",
			"Олар бірге тайғақ тастармен шулы бұлақтан өтті.",
			"Бұл оңай болмады, бірақ {name} ең бастысын есіне алды: {theme}.",
			"Ақыры олар кәрі еменнің түбіндегі түлкінің жайлы інін тапты.",
			"Түлкінің отбасы жаңа досына алғыс айтып, оны құшақтады.",
			"{name} үйіне күлімдеп қайтты және ешқашан ұмытпады: {theme}.",
		},
	},
}

// FallbackStory детерминированно строит историю из фиксированного каркаса.
// Используется, когда генератор текста недоступен или вернул мусор.
// Результат зависит только от запроса: одинаковый запрос дает одинаковую историю.
func FallbackStory(req models.StoryRequest) (*models.StoryContent, error) {
	skeleton, ok := fallbackSkeletons[req.Language]
	if !ok {
		return nil, fmt.Errorf("%w: no fallback for language %q", models.ErrInvalidInput, req.Language)
	}
	if req.PageCount < models.MinPageCount || req.PageCount > models.MaxPageCount {
		return nil, fmt.Errorf("%w: page count %d out of range", models.ErrInvalidInput, req.PageCount)
	}
	name := strings.TrimSpace(req.ChildName)
	if name == "" {
		return nil, fmt.Errorf("%w: child name is empty", models.ErrInvalidInput)
	}

	fill := strings.NewReplacer("{name}", name, "{theme}", LocalizedTheme(req.Theme, req.Language))

	content := &models.StoryContent{
		Title: fill.Replace(skeleton.title),
		Moral: fill.Replace(skeleton.moral),
		Pages: make([]models.Page, 0, req.PageCount),
	}
	for _, beat := range selectBeats(skeleton, req.PageCount) {
		content.Pages = append(content.Pages, models.Page{
			Text:        fill.Replace(beat.text),
			ImagePrompt: beat.imagePrompt,
		})
	}
	return content, nil
}

// selectBeats равномерно выбирает n сцен каркаса, сохраняя начало и конец.
func selectBeats(s fallbackSkeleton, n int) []fallbackBeat {
	if n == 1 {
		return []fallbackBeat{{text: s.single, imagePrompt: fallbackSingleScene}}
	}
	last := len(s.beats) - 1
	out := make([]fallbackBeat, 0, n)
	for i := 0; i < n; i++ {
		idx := i * last / (n - 1)
		out = append(out, fallbackBeat{text: s.beats[idx], imagePrompt: fallbackScenes[idx]})
	}
	return out
}
