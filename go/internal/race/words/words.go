// Package words supplies the text of a race.
package words

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

//go:embed english.txt
var english string

var ErrEmptyList = errors.New("word list is empty")

// Source picks race words uniformly from a fixed list. It is safe for
// concurrent use.
type Source struct {
	list []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Source over list. Entries that are not plain lowercase ASCII
// words are dropped, as are duplicates. A nil rnd is seeded from the clock.
func New(list []string, rnd *rand.Rand) (*Source, error) {
	kept := lo.Uniq(lo.Filter(list, func(w string, _ int) bool { return isPlainWord(w) }))
	if len(kept) == 0 {
		return nil, ErrEmptyList
	}
	if dropped := len(list) - len(kept); dropped > 0 {
		log.Debug().Int("dropped", dropped).Int("kept", len(kept)).Msg("filtered word list")
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Source{list: kept, rnd: rnd}, nil
}

// Default returns a Source over the built-in English list.
func Default() *Source {
	s, err := New(parse(strings.NewReader(english)), nil)
	if err != nil {
		panic(fmt.Sprintf("built-in word list: %v", err))
	}
	return s
}

// Load reads one word per line from path and returns a Source over them.
func Load(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	list := parse(file)
	s, err := New(list, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().Str("path", path).Int("words", s.Len()).Msg("loaded word list")
	return s, nil
}

// Words returns n words drawn with replacement.
func (s *Source) Words(ctx context.Context, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("word count must be positive, got %d", n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, n)
	for i := range out {
		out[i] = s.list[s.rnd.Intn(len(s.list))]
	}
	return out, nil
}

// Len is the number of distinct words available.
func (s *Source) Len() int {
	return len(s.list)
}

func parse(r io.Reader) []string {
	var list []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list = append(list, line)
	}
	return list
}

func isPlainWord(word string) bool {
	if word == "" {
		return false
	}
	for i := 0; i < len(word); i++ {
		if word[i] < 'a' || word[i] > 'z' {
			return false
		}
	}
	return true
}
