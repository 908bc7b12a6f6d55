package recognize

import (
	"fmt"
	"regexp"

	"parkgate/internal/domain/gate"
	"parkgate/internal/utils"
)

// Postprocessor validates raw reads against the regional plate format and
// repairs common OCR confusions before thresholding.
type Postprocessor struct {
	pattern       *regexp.Regexp
	minLen        int
	maxLen        int
	confThreshold float64
	charThreshold float64
}

func NewPostprocessor(opts Options) (*Postprocessor, error) {
	p := &Postprocessor{
		minLen:        opts.MinPlateLength,
		maxLen:        opts.MaxPlateLength,
		confThreshold: opts.ConfidenceThreshold,
		charThreshold: opts.CharConfidenceThreshold,
	}
	if opts.PlatePattern != "" {
		re, err := regexp.Compile(opts.PlatePattern)
		if err != nil {
			return nil, fmt.Errorf("compile plate pattern: %w", err)
		}
		p.pattern = re
	}
	return p, nil
}

// Candidate turns a raw read into a PlateCandidate, or reports false when
// the read is discarded. Confusion substitution is attempted only on
// characters below the local-confidence threshold; high-confidence
// characters are never rewritten.
func (p *Postprocessor) Candidate(read Read, frame gate.Frame, method gate.Method) (gate.PlateCandidate, bool) {
	text, confs := normalizeWithConfidence(read)
	if text == "" {
		return gate.PlateCandidate{}, false
	}

	if p.pattern != nil && !p.pattern.MatchString(text) {
		repaired, ok := p.repair([]byte(text), confs)
		if !ok {
			return gate.PlateCandidate{}, false
		}
		text = repaired
	}

	if len(text) < p.minLen || len(text) > p.maxLen {
		return gate.PlateCandidate{}, false
	}
	if read.Confidence < p.confThreshold {
		return gate.PlateCandidate{}, false
	}

	return gate.PlateCandidate{
		Text:       text,
		Confidence: read.Confidence,
		Box:        read.Box,
		CameraID:   frame.CameraID,
		FrameTime:  frame.Capture,
		Method:     method,
	}, true
}

// repair searches for a format-valid variant of text by swapping look-alike
// characters at low-confidence positions only. The original character is
// always preferred; the first valid variant wins.
func (p *Postprocessor) repair(text []byte, confs []float64) (string, bool) {
	var positions []int
	for i := range text {
		if confs[i] >= p.charThreshold {
			continue
		}
		if _, ok := utils.ConfusionSwap(text[i]); ok {
			positions = append(positions, i)
		}
	}
	if len(positions) == 0 {
		return "", false
	}
	// Bounded search space: at most 2^10 variants.
	if len(positions) > 10 {
		positions = positions[:10]
	}
	return p.tryVariants(text, positions)
}

func (p *Postprocessor) tryVariants(text []byte, positions []int) (string, bool) {
	if len(positions) == 0 {
		if p.pattern.Match(text) {
			return string(text), true
		}
		return "", false
	}

	pos, rest := positions[0], positions[1:]
	if s, ok := p.tryVariants(text, rest); ok {
		return s, true
	}

	orig := text[pos]
	swapped, _ := utils.ConfusionSwap(orig)
	text[pos] = swapped
	defer func() { text[pos] = orig }()
	return p.tryVariants(text, rest)
}

// normalizeWithConfidence normalizes the read text the same way plates are
// keyed, keeping per-character confidences aligned. Missing per-character
// scores fall back to the whole-read confidence.
func normalizeWithConfidence(read Read) (string, []float64) {
	text := make([]byte, 0, len(read.Text))
	confs := make([]float64, 0, len(read.Text))

	runes := []rune(read.Text)
	for i, r := range runes {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			continue
		}
		conf := read.Confidence
		if i < len(read.CharConfidences) {
			conf = read.CharConfidences[i]
		}
		text = append(text, byte(r))
		confs = append(confs, conf)
	}
	return string(text), confs
}
