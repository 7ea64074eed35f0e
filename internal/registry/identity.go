package registry

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var suffixRE = regexp.MustCompile(`-(\d+)$`)

// IDLister returns every stored identifier of a project starting with
// prefix.
type IDLister func(ctx context.Context, projectID, prefix string) ([]string, error)

// NextNumber returns max(existing suffix)+1 over identifiers starting
// with prefix, or 1 when there are none. floor raises the result to at
// least floor+1, for numbers already claimed outside the index.
func NextNumber(ctx context.Context, list IDLister, projectID, prefix string, floor int) (int, error) {
	ids, err := list(ctx, projectID, prefix)
	if err != nil {
		return 0, fmt.Errorf("listing identifiers %s*: %w", prefix, err)
	}
	max := floor
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		m := suffixRE.FindStringSubmatch(id)
		if m == nil || len(prefix)+len(m[1]) != len(id) {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// Sequence hands out consecutive numbers per prefix, querying the index
// once per prefix.
type Sequence struct {
	list      IDLister
	projectID string
	next      map[string]int
}

func NewSequence(list IDLister, projectID string) *Sequence {
	return &Sequence{list: list, projectID: projectID, next: map[string]int{}}
}

func (s *Sequence) Next(ctx context.Context, prefix string) (int, error) {
	n, ok := s.next[prefix]
	if !ok {
		var err error
		if n, err = NextNumber(ctx, s.list, s.projectID, prefix, 0); err != nil {
			return 0, err
		}
	}
	s.next[prefix] = n + 1
	return n, nil
}

func TestCasePrefix(section, entity string) string {
	return fmt.Sprintf("TC-%s-%s-", strings.ToUpper(section), strings.ToUpper(entity))
}
