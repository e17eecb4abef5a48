package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	assert.NotEqual(t, gen.Generate(), gen.Generate())
	assert.Len(t, gen.GenerateString(), 26)
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{TabPrefix, PromptPrefix, RequestPrefix} {
		t.Run(prefix, func(t *testing.T) {
			s := gen.GenerateWithPrefix(prefix)
			require.True(t, strings.HasPrefix(s, prefix+"_"))

			gotPrefix, _, err := ParsePrefixed(s)
			require.NoError(t, err)
			assert.Equal(t, prefix, gotPrefix)
		})
	}
}

func TestTypedIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewTabID().String(), "tab_"))
	assert.True(t, strings.HasPrefix(NewPromptID().String(), "prm_"))
	assert.True(t, strings.HasPrefix(NewRequestID().String(), "req_"))
}

func TestParsePrefixedErrors(t *testing.T) {
	_, _, err := ParsePrefixed("noprefix")
	assert.Error(t, err)

	_, _, err = ParsePrefixed("tab_notaulid")
	assert.Error(t, err)
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewTabID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("garbage")
	assert.Error(t, err)
}

func TestConcurrentGenerationUnique(t *testing.T) {
	gen := NewGenerator()
	const n = 200

	var (
		mu  sync.Mutex
		ids []string
		wg  sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := gen.GenerateString()
			mu.Lock()
			ids = append(ids, s)
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, s := range ids {
		seen[s] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestSequentialIDsSort(t *testing.T) {
	gen := NewGenerator()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen.GenerateString()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}
