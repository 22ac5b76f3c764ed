package words

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FiltersList(t *testing.T) {
	s, err := New([]string{"alpha", "Beta", "gamma", "", "two words", "gamma", "café", "x1"}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "gamma"}, s.list)
	assert.Equal(t, 2, s.Len())
}

func TestNew_EmptyAfterFiltering(t *testing.T) {
	_, err := New([]string{"UPPER", "123"}, nil)
	assert.ErrorIs(t, err, ErrEmptyList)
}

func TestWords(t *testing.T) {
	s, err := New([]string{"alpha", "beta", "gamma"}, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	got, err := s.Words(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, got, 50)
	for _, w := range got {
		assert.Contains(t, []string{"alpha", "beta", "gamma"}, w)
	}

	_, err = s.Words(context.Background(), 0)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Words(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWords_SameSeedSameText(t *testing.T) {
	list := []string{"alpha", "beta", "gamma", "delta"}
	a, err := New(list, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := New(list, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	wa, err := a.Words(context.Background(), 20)
	require.NoError(t, err)
	wb, err := b.Words(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, wa, wb)
}

func TestDefault(t *testing.T) {
	s := Default()
	assert.Greater(t, s.Len(), 100)
	for _, w := range s.list {
		assert.True(t, isPlainWord(w), w)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nzebra\n\n  yak  \nXRAY\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"zebra", "yak"}, s.list)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
