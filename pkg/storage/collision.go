package storage

import (
	"context"
	"fmt"
	"strings"
)

// maxNameProbes caps the collision probe so a pathological folder cannot spin
// the loop forever.
const maxNameProbes = 1000

// ExistsFunc reports whether a candidate filename is taken in the target
// folder. Adapters supply a name-scoped lookup bound to the resolved folder.
type ExistsFunc func(ctx context.Context, name string) (bool, error)

// GenerateUniqueFilename probes name, then name_1.ext, name_2.ext, ... and
// returns the first free candidate.
//
// The check-then-use sequence is racy under concurrent writers to the same
// folder: two callers can both see a slot as free. The expected workload is a
// single writer per organization, so the race is accepted rather than hidden
// behind a lock the backends cannot honor anyway.
func GenerateUniqueFilename(ctx context.Context, name string, exists ExistsFunc) (string, error) {
	taken, err := exists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to probe filename %q: %w", name, err)
	}
	if !taken {
		return name, nil
	}

	base, ext := splitExtension(name)

	for i := 1; i <= maxNameProbes; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to probe filename %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no free filename found for %q after %d probes", name, maxNameProbes)
}

func splitExtension(name string) (base, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		// No extension, or a dotfile like ".env" which keeps its dot.
		return name, ""
	}

	return name[:idx], name[idx:]
}
