package poster

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMediaPatterns are the image globs a DirPool matches when none are configured.
var DefaultMediaPatterns = []string{"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp", "*.bmp"}

// DirPool is a MediaPool backed by the files of one directory.
// Patterns are matched case-insensitively against base names.
type DirPool struct {
	Dir      string
	Patterns []string
}

func (p DirPool) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(p.Dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	patterns := p.Patterns
	if len(patterns) == 0 {
		patterns = DefaultMediaPatterns
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := strings.ToLower(e.Name())
		for _, pat := range patterns {
			if ok, _ := filepath.Match(strings.ToLower(pat), name); ok {
				out = append(out, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// SelectMedia draws k uniformly in [lo, hi] and samples min(k, len(pool))
// distinct items without replacement. An empty pool is ErrMediaUnavailable.
func SelectMedia(rng *rand.Rand, pool []string, lo, hi int) ([]string, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: pool is empty", ErrMediaUnavailable)
	}
	lo = max(0, lo)
	k := min(uniform(rng, lo, max(lo, hi)), len(pool))
	out := make([]string, 0, k)
	for _, i := range rng.Perm(len(pool))[:k] {
		out = append(out, pool[i])
	}
	return out, nil
}
