// Package plate turns per-half OCR output into a canonical, script-correct
// license plate string.
package plate

import (
	"context"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Fragment is one OCR'd text line from a plate half: the recognized text,
// the OCR confidence, and the bounding polygon in the half's coordinates.
// Fragments are transient; nothing persists them.
type Fragment struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Box        [][2]float64 `json:"box"`
}

// bottomY returns the lowest edge of the fragment's polygon (max y).
func (f *Fragment) bottomY() float64 {
	max := 0.0
	for _, p := range f.Box {
		if p[1] > max {
			max = p[1]
		}
	}

	return max
}

// Result is the assembled plate: canonical per-half strings in left-to-right
// half order, and the debug composite path when the write succeeded.
type Result struct {
	Fragments  []string `json:"fragments"`
	DebugImage string   `json:"debug_image,omitempty"`
}

// Assembler selects one text line per plate half and normalizes the pair
// into canonical strings. The debug sink may be nil (no composite written).
type Assembler struct {
	sink   DebugSink
	logger *slog.Logger
	now    func() time.Time
}

// NewAssembler creates an Assembler writing debug composites to sink.
func NewAssembler(sink DebugSink, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Assembler{sink: sink, logger: logger, now: time.Now}
}

// Assemble picks one fragment per half, normalizes each into reading order,
// and best-effort renders a composite of the two halves with the selected
// boxes outlined. A failed or skipped debug write never affects the text
// result; it is logged and the DebugImage field stays empty.
func (a *Assembler) Assemble(ctx context.Context, left, right []Fragment, leftImg, rightImg image.Image) Result {
	var (
		out      Result
		selected []selectedFragment
	)

	if f := lowestFragment(left); f != nil {
		out.Fragments = append(out.Fragments, Canonicalize(f.Text))
		selected = append(selected, selectedFragment{fragment: f, rightHalf: false})
	}

	if f := lowestFragment(right); f != nil {
		out.Fragments = append(out.Fragments, Canonicalize(f.Text))
		selected = append(selected, selectedFragment{fragment: f, rightHalf: true})
	}

	if a.sink != nil && leftImg != nil && rightImg != nil {
		name := debugImageName(a.now())

		path, err := a.writeComposite(name, leftImg, rightImg, selected)
		if err != nil {
			a.logger.WarnContext(ctx, "plate debug composite write failed", "name", name, "error", err)
		} else {
			out.DebugImage = path
		}
	}

	return out
}

// lowestFragment returns the fragment whose bounding polygon reaches lowest
// in the half image (maximum bottom-edge y). Plates in this domain carry the
// significant line at the bottom, so this is the documented tie-break, not an
// arbitrary pick. Fragments with empty text are ignored.
func lowestFragment(frags []Fragment) *Fragment {
	var best *Fragment

	for i := range frags {
		if frags[i].Text == "" {
			continue
		}

		if best == nil || frags[i].bottomY() > best.bottomY() {
			best = &frags[i]
		}
	}

	return best
}

// arabicBlockStart..arabicBlockEnd is the code point range the OCR engine
// returns in logical (already correct) order.
const (
	arabicBlockStart = 0x0621
	arabicBlockEnd   = 0x064A
)

// Canonicalize strips internal spaces and fixes glyph order: OCR returns
// non-Arabic (digit/Latin) runs in left-to-right glyph order, which must be
// reversed to visual reading order; Arabic text is already logical order and
// is kept as-is. The script is judged by the first rune.
func Canonicalize(text string) string {
	text = strings.ReplaceAll(text, " ", "")
	if text == "" {
		return text
	}

	runes := []rune(text)
	if runes[0] >= arabicBlockStart && runes[0] <= arabicBlockEnd {
		return text
	}

	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}

	return string(runes)
}

// debugImageName derives the composite file name from the wall clock, same
// token shape the gate operators' tooling expects (plate_<7 digit token>.jpg).
func debugImageName(t time.Time) string {
	token := t.UnixMilli() % 10000000

	return "plate_" + strconv.FormatInt(token, 10) + ".jpg"
}
