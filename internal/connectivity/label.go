package connectivity

import (
	"regexp"
	"strings"
)

// GapSuffix is appended to the rendered name of gap-junction populations.
const GapSuffix = "-Gap"

// gapMarker flags a raw label as a gap-junction population.
const gapMarker = "Gap"

var bracketPattern = regexp.MustCompile(`\['(.*?)'\]`)

// Label is a canonical population label decoded from a connection report.
// Tags stay separate from the base name until String is called.
type Label struct {
	Base     string
	Gap      bool
	Assembly string
}

// String renders the label as it appears on plot axes.
func (l Label) String() string {
	s := l.Base
	if l.Gap {
		s += GapSuffix
	}
	return s + l.Assembly
}

// InAssembly reports whether the label carries an assembly tag.
func (l Label) InAssembly() bool {
	return l.Assembly != ""
}

// WithoutAssembly returns l with the assembly tag resolved away.
func (l Label) WithoutAssembly() Label {
	l.Assembly = ""
	return l
}

// LabelParser turns free-form report labels into canonical labels.
type LabelParser struct {
	// Exclude lists substrings that drop a label entirely.
	Exclude []string
	// AssemblyKey marks assembly sub-populations. Empty disables tagging.
	AssemblyKey string
}

// Parse decodes raw. It returns false when the label is excluded or empty.
func (p LabelParser) Parse(raw string) (Label, bool) {
	for _, ex := range p.Exclude {
		if ex != "" && strings.Contains(raw, ex) {
			return Label{}, false
		}
	}

	m := bracketPattern.FindStringSubmatch(raw)
	if m == nil {
		if raw == "" {
			return Label{}, false
		}
		return Label{Base: raw}, true
	}

	l := Label{Base: m[1]}
	if strings.Contains(raw, gapMarker) {
		l.Gap = true
	}
	if p.AssemblyKey != "" && strings.Contains(raw, p.AssemblyKey) {
		l.Assembly = p.AssemblyKey
	}
	if l.String() == "" {
		return Label{}, false
	}
	return l, true
}

// ParseLabel is shorthand for LabelParser{exclude, assemblyKey}.Parse(raw).
func ParseLabel(raw string, exclude []string, assemblyKey string) (Label, bool) {
	return LabelParser{Exclude: exclude, AssemblyKey: assemblyKey}.Parse(raw)
}
