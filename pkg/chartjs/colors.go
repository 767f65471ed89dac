package chartjs

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// ParseColor parses a CSS color: #rgb, #rgba, #rrggbb, #rrggbbaa, rgb(),
// rgba(), hsl(), hsla(), a named color or "transparent".
func ParseColor(s string) (color.Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return nil, fmt.Errorf("empty color")
	case s == "transparent":
		return color.Transparent, nil
	case strings.HasPrefix(s, "#"):
		return parseHex(s)
	case strings.HasPrefix(s, "rgb"):
		return parseRGB(s)
	case strings.HasPrefix(s, "hsl"):
		return parseHSL(s)
	}
	if c, ok := colornames.Map[s]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown color %q", s)
}

func parseHex(s string) (color.Color, error) {
	alpha := uint8(255)
	switch len(s) {
	case 5: // #rgba
		a, err := strconv.ParseUint(strings.Repeat(s[4:5], 2), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid color %q: %w", s, err)
		}
		alpha, s = uint8(a), s[:4]
	case 9: // #rrggbbaa
		a, err := strconv.ParseUint(s[7:9], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid color %q: %w", s, err)
		}
		alpha, s = uint8(a), s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// functionArgs splits "name(a, b, c)" into its arguments.
func functionArgs(s string) ([]string, error) {
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return nil, fmt.Errorf("invalid color %q", s)
	}
	inner := strings.NewReplacer("/", ",", " ", ",").Replace(s[open+1 : end])
	var args []string
	for _, a := range strings.Split(inner, ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}
	if len(args) != 3 && len(args) != 4 {
		return nil, fmt.Errorf("invalid color %q: want 3 or 4 components", s)
	}
	return args, nil
}

// component parses a number or percentage; percentages are scaled to max.
func component(a string, max float64) (float64, error) {
	if strings.HasSuffix(a, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(a, "%"), 64)
		return v / 100 * max, err
	}
	return strconv.ParseFloat(a, 64)
}

func alphaArg(args []string) (uint8, error) {
	if len(args) < 4 {
		return 255, nil
	}
	a, err := component(args[3], 1)
	if err != nil {
		return 0, err
	}
	return clamp8(a * 255), nil
}

func parseRGB(s string) (color.Color, error) {
	args, err := functionArgs(s)
	if err != nil {
		return nil, err
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		v, err := component(args[i], 255)
		if err != nil {
			return nil, fmt.Errorf("invalid color %q: %w", s, err)
		}
		rgb[i] = clamp8(v)
	}
	a, err := alphaArg(args)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: a}, nil
}

func parseHSL(s string) (color.Color, error) {
	args, err := functionArgs(s)
	if err != nil {
		return nil, err
	}
	h, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "deg"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", s, err)
	}
	sat, err := component(args[1], 1)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", s, err)
	}
	light, err := component(args[2], 1)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", s, err)
	}
	a, err := alphaArg(args)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := colorful.Hsl(math.Mod(math.Mod(h, 360)+360, 360), sat, light).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: a}, nil
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.Round(v))
}
