// -- internal/humanoid/keyboard.go --
package humanoid

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// keyAliases maps the spellings models commonly use onto canonical key names.
var keyAliases = map[string]string{
	"control":    "ctrl",
	"ctl":        "ctrl",
	"option":     "alt",
	"opt":        "alt",
	"cmd":        "meta",
	"command":    "meta",
	"win":        "meta",
	"windows":    "meta",
	"super":      "meta",
	"return":     "enter",
	"esc":        "escape",
	"del":        "delete",
	"bksp":       "backspace",
	"pgup":       "pageup",
	"page_up":    "pageup",
	"pgdn":       "pagedown",
	"pgdown":     "pagedown",
	"page_down":  "pagedown",
	"arrowup":    "up",
	"arrowdown":  "down",
	"arrowleft":  "left",
	"arrowright": "right",
	"ins":        "insert",
	"spacebar":   "space",
	"prtsc":      "printscreen",
	"print":      "printscreen",
	"caps":       "capslock",
	"caps_lock":  "capslock",
}

// namedKeys is the canonical set of multi-character key names.
var namedKeys = map[string]bool{
	"ctrl": true, "alt": true, "shift": true, "meta": true,
	"enter": true, "tab": true, "escape": true, "backspace": true, "delete": true, "space": true,
	"up": true, "down": true, "left": true, "right": true,
	"home": true, "end": true, "pageup": true, "pagedown": true, "insert": true,
	"capslock": true, "printscreen": true,
	"f1": true, "f2": true, "f3": true, "f4": true, "f5": true, "f6": true,
	"f7": true, "f8": true, "f9": true, "f10": true, "f11": true, "f12": true,
}

// ErrUnsupportedKey is returned for key names outside the canonical set.
var ErrUnsupportedKey = fmt.Errorf("humanoid: %w", schemas.ErrUnsupportedKey)

// NormalizeKey maps a model supplied key name to its canonical form. Single
// characters are returned as given so that case survives.
func NormalizeKey(raw string) (string, error) {
	k := strings.TrimSpace(raw)
	if utf8.RuneCountInString(k) == 1 {
		return k, nil
	}
	k = strings.ToLower(k)
	if alias, ok := keyAliases[k]; ok {
		k = alias
	}
	if !namedKeys[k] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKey, raw)
	}
	return k, nil
}

// NormalizeChord expands "ctrl+c" style entries and normalizes every key. An
// uppercase letter becomes shift plus its lowercase form, with shift pressed
// once ahead of it.
func NormalizeChord(keys []string) ([]string, error) {
	var out []string
	for _, entry := range keys {
		parts := []string{entry}
		if utf8.RuneCountInString(strings.TrimSpace(entry)) > 1 && strings.Contains(entry, "+") {
			parts = strings.Split(entry, "+")
		}
		for _, p := range parts {
			k, err := NormalizeKey(p)
			if err != nil {
				return nil, err
			}
			if lower := strings.ToLower(k); lower != k && utf8.RuneCountInString(k) == 1 {
				if !slices.Contains(out, "shift") {
					out = append(out, "shift")
				}
				k = lower
			}
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty key combination", ErrUnsupportedKey)
	}
	return out, nil
}

// Chord presses keys in order and releases them in reverse order. If a
// press fails, the keys already held are released before returning.
func (h *Humanoid) Chord(ctx context.Context, keys []string) error {
	chord, err := NormalizeChord(keys)
	if err != nil {
		return err
	}

	pressed := make([]string, 0, len(chord))
	release := func() error {
		var errs []error
		for i := len(pressed) - 1; i >= 0; i-- {
			if err := h.executor.KeyUp(context.WithoutCancel(ctx), pressed[i]); err != nil {
				errs = append(errs, fmt.Errorf("release %q: %w", pressed[i], err))
			}
		}
		return errors.Join(errs...)
	}

	for _, k := range chord {
		if err := h.executor.KeyDown(ctx, k); err != nil {
			if relErr := release(); relErr != nil {
				h.logger.Warn("Failed to release keys after aborted chord", zap.Error(relErr))
			}
			return fmt.Errorf("humanoid: failed to press %q: %w", k, err)
		}
		pressed = append(pressed, k)
	}
	if err := release(); err != nil {
		return fmt.Errorf("humanoid: %w", err)
	}
	return nil
}

// Type enters text one rune at a time, pausing KeyInterval between runes.
// A zero interval sends the whole string at once.
func (h *Humanoid) Type(ctx context.Context, text string) error {
	if h.cfg.KeyInterval <= 0 {
		return h.executor.TypeText(ctx, text)
	}

	first := true
	for _, r := range text {
		if !first {
			if err := h.executor.Sleep(ctx, h.cfg.KeyInterval); err != nil {
				return err
			}
		}
		first = false
		if err := h.executor.TypeText(ctx, string(r)); err != nil {
			return fmt.Errorf("humanoid: failed to type %q: %w", r, err)
		}
	}
	return nil
}
