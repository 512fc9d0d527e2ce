// Package transliterate converts between simplified and traditional Chinese
// scripts using the OpenCC conversion tables, which handle phrase-level and
// one-to-many mappings rather than single characters.
package transliterate

import (
	"log"
	"sync"

	"github.com/longbridgeapp/opencc"
)

var (
	once sync.Once
	s2t  *opencc.OpenCC
	t2s  *opencc.OpenCC
)

func load() {
	once.Do(func() {
		var err error
		if s2t, err = opencc.New("s2t"); err != nil {
			log.Printf("Failed to load s2t conversion tables: %v", err)
		}
		if t2s, err = opencc.New("t2s"); err != nil {
			log.Printf("Failed to load t2s conversion tables: %v", err)
		}
	})
}

// SimplifiedToTraditional converts simplified characters in text to their
// traditional forms. Conversion failures fall back to the input unchanged.
func SimplifiedToTraditional(text string) string {
	load()
	if s2t == nil {
		return text
	}
	out, err := s2t.Convert(text)
	if err != nil {
		return text
	}
	return out
}

// TraditionalToSimplified converts traditional characters in text to their
// simplified forms. Conversion failures fall back to the input unchanged.
func TraditionalToSimplified(text string) string {
	load()
	if t2s == nil {
		return text
	}
	out, err := t2s.Convert(text)
	if err != nil {
		return text
	}
	return out
}
