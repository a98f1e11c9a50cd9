package keystore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/ktesting"
	"k8s.io/utils/ptr"

	"github.com/jetstack/jwks-resolver/api"
)

func TestFile_Load(t *testing.T) {
	tests := []struct {
		name     string
		content  *string
		expected map[string]api.KeyRecord
	}{
		{
			name:     "missing-file",
			content:  nil,
			expected: map[string]api.KeyRecord{},
		},
		{
			name:     "empty-file",
			content:  ptr.To(""),
			expected: map[string]api.KeyRecord{},
		},
		{
			name:     "not-json",
			content:  ptr.To("this is not json"),
			expected: map[string]api.KeyRecord{},
		},
		{
			name:     "json-array",
			content:  ptr.To(`[{"kid":"A"}]`),
			expected: map[string]api.KeyRecord{},
		},
		{
			name:     "unrelated-content-is-skipped",
			content:  ptr.To(`{"stuff":"other stuff"}`),
			expected: map[string]api.KeyRecord{},
		},
		{
			name:    "records",
			content: ptr.To(`{"12345678":{"kid":"12345678"},"other":{"kid":"other","kty":"RSA","publicKey":"pub"}}`),
			expected: map[string]api.KeyRecord{
				"12345678": {KID: "12345678"},
				"other":    {KID: "other", KeyType: "RSA", PublicKey: "pub"},
			},
		},
		{
			name:    "kid-defaults-to-map-key",
			content: ptr.To(`{"A":{"publicKey":"pub"},"bad":42}`),
			expected: map[string]api.KeyRecord{
				"A": {KID: "A", PublicKey: "pub"},
			},
		},
		{
			name:    "map-key-wins-over-record-kid",
			content: ptr.To(`{"x":{"kid":"y","publicKey":"pub"}}`),
			expected: map[string]api.KeyRecord{
				"x": {KID: "x", PublicKey: "pub"},
			},
		},
		{
			name:     "json-null",
			content:  ptr.To(`null`),
			expected: map[string]api.KeyRecord{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			log := ktesting.NewLogger(t, ktesting.DefaultConfig)
			ctx := klog.NewContext(t.Context(), log)
			path := filepath.Join(t.TempDir(), "jwks-cache")
			if tc.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tc.content), 0600))
			}

			got := NewFile(path).Load(ctx)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestFile_LoadUnreadable(t *testing.T) {
	log := ktesting.NewLogger(t, ktesting.DefaultConfig)
	ctx := klog.NewContext(t.Context(), log)

	// A directory cannot be read as a file.
	got := NewFile(t.TempDir()).Load(ctx)
	assert.Empty(t, got)
}

func TestMerge(t *testing.T) {
	existing := map[string]api.KeyRecord{
		"A": {KID: "A", PublicKey: "old-a"},
		"B": {KID: "B", PublicKey: "old-b"},
	}

	merged := Merge(existing, []api.KeyRecord{
		{KID: "B", PublicKey: "new-b"},
		{KID: "C", PublicKey: "new-c"},
	})

	assert.Equal(t, map[string]api.KeyRecord{
		"A": {KID: "A", PublicKey: "old-a"},
		"B": {KID: "B", PublicKey: "new-b"},
		"C": {KID: "C", PublicKey: "new-c"},
	}, merged)
	assert.Equal(t, "old-b", existing["B"].PublicKey, "inputs must not be modified")
}

func TestFile_SaveAndMerge(t *testing.T) {
	log := ktesting.NewLogger(t, ktesting.DefaultConfig)
	ctx := klog.NewContext(t.Context(), log)
	path := filepath.Join(t.TempDir(), "jwks-cache")
	require.NoError(t, os.WriteFile(path, []byte(`{"other":{"kid":"other"},"A":{"kid":"A","publicKey":"old"}}`), 0600))

	f := NewFile(path)
	require.NoError(t, f.MergeAndSave(ctx, []api.KeyRecord{{KID: "A", PublicKey: "new"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"other":{"kid":"other"},"A":{"kid":"A","publicKey":"new"}}`, string(data))

	assert.Equal(t, map[string]api.KeyRecord{
		"other": {KID: "other"},
		"A":     {KID: "A", PublicKey: "new"},
	}, f.Load(ctx))
}

func TestFile_MergeAndSaveKeepsOtherEntries(t *testing.T) {
	log := ktesting.NewLogger(t, ktesting.DefaultConfig)
	ctx := klog.NewContext(t.Context(), log)
	path := filepath.Join(t.TempDir(), "jwks-cache")
	require.NoError(t, os.WriteFile(path, []byte(`{"stuff":"other stuff","12345678":{"kid":"12345678"},"bad":42}`), 0600))

	f := NewFile(path)
	require.NoError(t, f.MergeAndSave(ctx, []api.KeyRecord{{KID: "A", PublicKey: "pub"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"stuff": "other stuff",
		"bad": 42,
		"12345678": {"kid": "12345678"},
		"A": {"kid": "A", "publicKey": "pub"}
	}`, string(data))

	assert.Equal(t, map[string]api.KeyRecord{
		"12345678": {KID: "12345678"},
		"A":        {KID: "A", PublicKey: "pub"},
	}, f.Load(ctx))
}

func TestFile_MergeAndSaveCorruptFile(t *testing.T) {
	log := ktesting.NewLogger(t, ktesting.DefaultConfig)
	ctx := klog.NewContext(t.Context(), log)
	path := filepath.Join(t.TempDir(), "jwks-cache")
	require.NoError(t, os.WriteFile(path, []byte(`this is not json`), 0600))

	require.NoError(t, NewFile(path).MergeAndSave(ctx, []api.KeyRecord{{KID: "A"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"A": {"kid": "A"}}`, string(data))
}

func TestFile_SaveFailureLeavesFileUntouched(t *testing.T) {
	log := ktesting.NewLogger(t, ktesting.DefaultConfig)
	ctx := klog.NewContext(t.Context(), log)
	path := filepath.Join(t.TempDir(), "no-such-folder", "jwks-cache")

	err := NewFile(path).Save(ctx, map[string]api.KeyRecord{"A": {KID: "A"}})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to write file: "), err.Error())
	assert.ErrorIs(t, err, os.ErrNotExist, "the cause should stay inspectable")
	assert.NoFileExists(t, path)
}

func TestNewFile_DefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "jwks-cache"), NewFile("").Path())
	assert.Equal(t, "/somewhere/else", NewFile("/somewhere/else").Path())
}
