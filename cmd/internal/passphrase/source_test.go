package passphrase

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSource(env map[string]string, tty bool, secret string) (*Source, *int) {
	reads := 0
	s := NewSource("PRIZE_TEST_PASS", "Unlock")
	s.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.isTerminal = func() bool { return tty }
	s.readSecret = func() ([]byte, error) {
		reads++
		if secret == "" {
			return nil, errors.New("closed")
		}
		return []byte(secret), nil
	}
	s.out = new(bytes.Buffer)
	return s, &reads
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s, reads := newTestSource(map[string]string{"PRIZE_TEST_PASS": "hunter2"}, true, "typed")
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "hunter2", got)
	require.Zero(t, *reads)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	s, _ := newTestSource(map[string]string{"PRIZE_TEST_PASS": "  "}, true, "typed")
	_, err := s.Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestSourcePromptsOnceAndCaches(t *testing.T) {
	s, reads := newTestSource(nil, true, "typed")
	for i := 0; i < 3; i++ {
		got, err := s.Get()
		require.NoError(t, err)
		require.Equal(t, "typed", got)
	}
	require.Equal(t, 1, *reads)
	require.Contains(t, s.out.(*bytes.Buffer).String(), "Unlock: ")
}

func TestSourceWithoutTerminal(t *testing.T) {
	s, _ := newTestSource(nil, false, "typed")
	_, err := s.Get()
	require.ErrorContains(t, err, "PRIZE_TEST_PASS")
}

func TestStaticSource(t *testing.T) {
	got, err := Static("").Get()
	require.NoError(t, err)
	require.Empty(t, got)
}
