package storygen

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Tokenizer считает и обрезает текст по токенам модели.
type Tokenizer interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// tiktokenTokenizer лениво загружает кодировку для модели.
// Если модель неизвестна tiktoken, используется cl100k_base.
type tiktokenTokenizer struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
	err   error
}

// NewTiktokenTokenizer создает токенайзер для модели.
func NewTiktokenTokenizer(model string) Tokenizer {
	return &tiktokenTokenizer{model: model}
}

func (t *tiktokenTokenizer) encoding() (*tiktoken.Tiktoken, error) {
	t.once.Do(func() {
		t.enc, t.err = tiktoken.EncodingForModel(t.model)
		if t.err != nil {
			t.enc, t.err = tiktoken.GetEncoding(defaultEncoding)
		}
	})
	return t.enc, t.err
}

// Count возвращает число токенов или грубую оценку, если кодировка недоступна.
func (t *tiktokenTokenizer) Count(text string) int {
	enc, err := t.encoding()
	if err != nil {
		return approxTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// Truncate обрезает текст до maxTokens токенов.
func (t *tiktokenTokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	enc, err := t.encoding()
	if err != nil {
		return truncateRunes(text, maxTokens*4)
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	// Обрезка по токенам может разрезать многобайтовый символ
	return strings.ToValidUTF8(enc.Decode(tokens[:maxTokens]), "")
}

// approxTokens - оценка около 4 символов на токен.
func approxTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

func truncateRunes(text string, maxRunes int) string {
	r := []rune(text)
	if len(r) <= maxRunes {
		return text
	}
	return string(r[:maxRunes])
}
