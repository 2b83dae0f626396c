package services

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"strings"

	"github.com/example/zar/internal/utils"
)

const (
	trackingAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	trackingSuffixLength = 6
	trackingDateLayout   = "20060102"
)

// TrackingCodeSource produces candidate tracking codes. Uniqueness is the
// ledger's job, not the source's.
type TrackingCodeSource interface {
	Generate() (string, error)
}

// TrackingCodeGenerator builds codes of the form PREFIX-YYYYMMDD-XXXXXX.
type TrackingCodeGenerator struct {
	Prefix string
	Clock  utils.Clock
	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

// NewTrackingCodeGenerator returns a generator using the wall clock and
// crypto/rand.
func NewTrackingCodeGenerator(prefix string) *TrackingCodeGenerator {
	return &TrackingCodeGenerator{Prefix: prefix, Clock: utils.RealClock(), Rand: rand.Reader}
}

// Generate returns a new candidate code.
func (g *TrackingCodeGenerator) Generate() (string, error) {
	source := g.Rand
	if source == nil {
		source = rand.Reader
	}
	clock := g.Clock
	if clock == nil {
		clock = utils.RealClock()
	}

	alphabetLen := big.NewInt(int64(len(trackingAlphabet)))
	suffix := make([]byte, trackingSuffixLength)
	for i := range suffix {
		n, err := rand.Int(source, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("tracking code entropy: %w", err)
		}
		suffix[i] = trackingAlphabet[n.Int64()]
	}

	return fmt.Sprintf("%s-%s-%s", g.Prefix, clock.Now().Format(trackingDateLayout), suffix), nil
}

// TrackingCodePattern matches codes issued with prefix.
func TrackingCodePattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-\d{8}-[A-Z0-9]{6}$`)
}

// NormalizeTrackingCode trims and uppercases user input before lookup.
func NormalizeTrackingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
