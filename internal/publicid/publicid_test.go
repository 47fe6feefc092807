package publicid

import (
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var format = regexp.MustCompile(`^\d{17}-[0-9a-f]{20}$`)

func fixed(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestGenerateDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123*int(time.Millisecond), time.UTC)
	g := &Generator{Salt: "pepper", Now: fixed(at)}

	a := g.Generate("applications", 10, 3)
	require.Regexp(t, format, a)
	require.True(t, strings.HasPrefix(a, "20260301120000123-"))
	require.Equal(t, a, g.Generate("applications", 10, 3))

	require.NotEqual(t, a, g.Generate("applications", 11, 3))
	require.NotEqual(t, a, g.Generate("applications", 10, 4))
	require.NotEqual(t, a, g.Generate("tickets", 10, 3))

	other := &Generator{Salt: "salt", Now: fixed(at)}
	require.NotEqual(t, a, other.Generate("applications", 10, 3))
}

func TestGenerateSortsByTime(t *testing.T) {
	base := time.Date(2026, 12, 31, 23, 59, 59, 0, time.FixedZone("JST", 9*3600))
	var ids []string
	for i := 0; i < 5; i++ {
		g := &Generator{Salt: "s", Now: fixed(base.Add(time.Duration(i) * 7 * time.Millisecond))}
		ids = append(ids, g.Generate("tickets", uint64(100-i), 1))
	}
	require.True(t, sort.StringsAreSorted(ids))
	require.True(t, strings.HasPrefix(ids[0], "20261231145959000"), "stamp is UTC")
}

func TestLongSaltAndHashLen(t *testing.T) {
	g := &Generator{Salt: strings.Repeat("k", 200), HashLen: 8, Now: fixed(time.Unix(0, 0))}
	id := g.Generate("tickets", 1, 1)
	require.Len(t, id, 17+1+8)
	require.NotEmpty(t, New("x").Generate("tickets", 1, 1))
}
