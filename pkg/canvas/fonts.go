package canvas

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/image/font/opentype"
	"gonum.org/v1/plot/font"
)

// ErrFontRegistration is wrapped by every font registration failure.
var ErrFontRegistration = errors.New("font registration failed")

var (
	familiesMu sync.Mutex
	families   = make(map[string]string)
)

// RegisterFont loads the TrueType or OpenType font at path and makes it
// available to text drawn on any canvas under family. Text metrics come
// from the registered face, so fonts must be registered before drawing.
func RegisterFont(path, family string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFontRegistration, err)
	}
	if err := RegisterFontData(data, family); err != nil {
		return err
	}
	familiesMu.Lock()
	families[family] = path
	familiesMu.Unlock()
	return nil
}

// RegisterFontData registers an in-memory font under family.
func RegisterFontData(data []byte, family string) error {
	if family == "" {
		return fmt.Errorf("%w: empty family name", ErrFontRegistration)
	}
	face, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("%w: parsing %s: %w", ErrFontRegistration, family, err)
	}
	font.DefaultCache.Add(font.Collection{
		{Font: font.Font{Typeface: font.Typeface(family)}, Face: face},
	})

	familiesMu.Lock()
	if _, ok := families[family]; !ok {
		families[family] = ""
	}
	familiesMu.Unlock()
	return nil
}

// RegisteredFamilies lists the families added with RegisterFont or
// RegisterFontData, sorted.
func RegisteredFamilies() []string {
	familiesMu.Lock()
	defer familiesMu.Unlock()
	out := make([]string, 0, len(families))
	for f := range families {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FontRegistered reports whether family has a face in the font cache.
func FontRegistered(family string) bool {
	return font.DefaultCache.Has(font.Font{Typeface: font.Typeface(family)})
}
