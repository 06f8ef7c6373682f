package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LangText maps language codes to strings, keeping the order in which the
// backend listed them. The first language is the fallback when the target
// language is missing.
type LangText struct {
	langs []string
	text  map[string]string
}

// NewLangText builds a LangText from lang/text pairs.
func NewLangText(pairs ...string) LangText {
	var t LangText
	for i := 0; i+1 < len(pairs); i += 2 {
		t.set(pairs[i], pairs[i+1])
	}
	return t
}

func (t *LangText) set(lang, s string) {
	if t.text == nil {
		t.text = make(map[string]string)
	}
	if _, ok := t.text[lang]; !ok {
		t.langs = append(t.langs, lang)
	}
	t.text[lang] = s
}

// Get returns the text for lang.
func (t LangText) Get(lang string) (string, bool) {
	s, ok := t.text[lang]
	return s, ok
}

// First returns the text of the first listed language, or "".
func (t LangText) First() string {
	if len(t.langs) == 0 {
		return ""
	}
	return t.text[t.langs[0]]
}

// Langs returns the language codes in backend order.
func (t LangText) Langs() []string {
	return append([]string(nil), t.langs...)
}

// Len returns the number of languages.
func (t LangText) Len() int {
	return len(t.langs)
}

// UnmarshalJSON decodes an object while preserving key order.
func (t *LangText) UnmarshalJSON(data []byte) error {
	*t = LangText{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode text: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decode text: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode text key: %w", err)
		}
		lang, _ := keyTok.(string)

		var s *string
		if err := dec.Decode(&s); err != nil {
			return fmt.Errorf("decode text %q: %w", lang, err)
		}
		if s == nil {
			t.set(lang, "")
			continue
		}
		t.set(lang, *s)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode text: %w", err)
	}
	return nil
}

// MarshalJSON encodes the languages in their original order.
func (t LangText) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, lang := range t.langs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(lang)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(t.text[lang])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
