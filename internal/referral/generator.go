// AngelaMos | 2026
// generator.go

package referral

import (
	"context"
	"fmt"
	"io"

	"github.com/TatyOko28/refresh-system/internal/core"
)

type ExistsFunc func(ctx context.Context, code string) (bool, error)

type Generator struct {
	length      int
	maxAttempts int
	random      io.Reader
}

func NewGenerator(length, maxAttempts int) *Generator {
	return &Generator{length: length, maxAttempts: maxAttempts}
}

// WithRandom swaps the entropy source. nil restores crypto/rand.
func (g *Generator) WithRandom(r io.Reader) *Generator {
	g.random = r
	return g
}

// Generate draws codes from A-Z0-9 until exists reports a free one.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code, err := core.RandomString(g.random, g.length, core.CodeAlphabet)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}

		taken, err := exists(ctx, code)
		if err != nil {
			return "", classify("generate code", err)
		}
		if !taken {
			return code, nil
		}
	}

	return "", newError(
		"generate code",
		KindCodeSpaceExhausted,
		fmt.Errorf("no free code of length %d after %d attempts", g.length, g.maxAttempts),
	)
}
