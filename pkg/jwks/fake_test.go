package jwks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstack/jwks-resolver/api"
)

func TestFakeFetcher(t *testing.T) {
	t.Run("returns a copy of the keys", func(t *testing.T) {
		f := NewFakeFetcher(api.KeyRecord{KID: "A"}, api.KeyRecord{KID: "B"})

		keys, err := f.Fetch(t.Context())
		require.NoError(t, err)
		require.Len(t, keys, 2)
		keys[0].KID = "changed"

		keys, err = f.Fetch(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "A", keys[0].KID)
		assert.Equal(t, 2, f.FetchCalls())
	})

	t.Run("error takes precedence", func(t *testing.T) {
		boom := errors.New("boom")
		f := NewFakeFetcherWithError(boom)
		f.Keys = []api.KeyRecord{{KID: "A"}}

		_, err := f.Fetch(t.Context())
		assert.ErrorIs(t, err, boom)

		f.SetKeys(api.KeyRecord{KID: "B"})
		keys, err := f.Fetch(t.Context())
		require.NoError(t, err)
		assert.Equal(t, []api.KeyRecord{{KID: "B"}}, keys)

		f.SetError(boom)
		_, err = f.Fetch(t.Context())
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, f.FetchCalls())
	})

	t.Run("canceled context", func(t *testing.T) {
		f := NewFakeFetcher(api.KeyRecord{KID: "A"})
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := f.Fetch(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
