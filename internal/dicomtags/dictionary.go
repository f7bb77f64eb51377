// Package dicomtags resolves raw DICOM tag codes ("00100010") to the
// standard dictionary keywords ("PatientName") used in collapsed sidecars.
package dicomtags

import (
	"strconv"
	"strings"
	"sync"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// Resolver maps an eight hex digit tag code to its keyword. ok is false for
// codes the dictionary does not know.
type Resolver interface {
	Keyword(code string) (keyword string, ok bool)
}

// Dictionary resolves codes through the standard DICOM data dictionary plus
// optional site overrides. Lookups are memoized for the life of the process.
type Dictionary struct {
	overrides map[string]string

	once  sync.Once
	mu    sync.RWMutex
	cache map[string]string
}

var (
	defaultOnce sync.Once
	defaultDict *Dictionary
)

// Default returns the process-wide dictionary without overrides.
func Default() *Dictionary {
	defaultOnce.Do(func() {
		defaultDict = NewDictionary(nil)
	})
	return defaultDict
}

// NewDictionary builds a dictionary. Override keys are tag codes in any case.
func NewDictionary(overrides map[string]string) *Dictionary {
	normalized := make(map[string]string, len(overrides))
	for code, keyword := range overrides {
		if c, ok := normalizeCode(code); ok && keyword != "" {
			normalized[c] = keyword
		}
	}
	return &Dictionary{overrides: normalized}
}

// Keyword implements Resolver.
func (d *Dictionary) Keyword(code string) (string, bool) {
	normalized, ok := normalizeCode(code)
	if !ok {
		return "", false
	}
	d.once.Do(func() {
		d.cache = make(map[string]string, 64)
	})

	d.mu.RLock()
	keyword, cached := d.cache[normalized]
	d.mu.RUnlock()
	if cached {
		return keyword, keyword != ""
	}

	keyword = d.lookup(normalized)
	d.mu.Lock()
	d.cache[normalized] = keyword
	d.mu.Unlock()
	return keyword, keyword != ""
}

func (d *Dictionary) lookup(code string) string {
	if keyword, ok := d.overrides[code]; ok {
		return keyword
	}
	group, err := strconv.ParseUint(code[:4], 16, 16)
	if err != nil {
		return ""
	}
	element, err := strconv.ParseUint(code[4:], 16, 16)
	if err != nil {
		return ""
	}
	info, err := tag.Find(tag.Tag{Group: uint16(group), Element: uint16(element)})
	if err != nil {
		return ""
	}
	return info.Name
}

// IsTagCode reports whether key looks like a raw tag code.
func IsTagCode(key string) bool {
	_, ok := normalizeCode(key)
	return ok
}

func normalizeCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 8 {
		return "", false
	}
	for _, r := range code {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'F') {
			return "", false
		}
	}
	return code, true
}

// Map is a fixed Resolver, handy for tests and offline dictionaries.
type Map map[string]string

// Keyword implements Resolver.
func (m Map) Keyword(code string) (string, bool) {
	normalized, ok := normalizeCode(code)
	if !ok {
		return "", false
	}
	keyword, ok := m[normalized]
	return keyword, ok
}
