package metadata

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

var combo = model.Combination{
	{Layer: "Background", Trait: model.Trait{Name: "Sunset"}},
	{Layer: "Eyes", Trait: model.Trait{Name: "Laser & Fire"}},
}

func TestNewRecord(t *testing.T) {
	c := Collection{
		Name:         "Apes",
		Description:  "Bored",
		BaseImageURL: model.DefaultBaseImageURL,
		Extension:    "gif",
	}
	rec := NewRecord(c, 7, combo)

	assert.Equal(t, "Apes #7", rec.Name)
	assert.Equal(t, "Bored", rec.Description)
	assert.Equal(t, "ipfs://YOUR_IPFS_CID_PLACEHOLDER/7.gif", rec.Image)
	assert.Empty(t, rec.ExternalURL)
	assert.Equal(t, []model.Attribute{
		{TraitType: "Background", Value: "Sunset"},
		{TraitType: "Eyes", Value: "Laser & Fire"},
	}, rec.Attributes)

	// Deterministic for equal inputs.
	assert.Equal(t, rec, NewRecord(c, 7, combo))
}

func TestMarshal(t *testing.T) {
	rec := NewRecord(Collection{Name: "A", Description: "d", BaseImageURL: "ipfs://x/", ExternalURL: "https://a.io"}, 0, combo[:1])
	b, err := Marshal(rec)
	require.NoError(t, err)

	want := `{
    "name": "A #0",
    "description": "d",
    "image": "ipfs://x/0.png",
    "external_url": "https://a.io",
    "attributes": [
        {
            "trait_type": "Background",
            "value": "Sunset"
        }
    ]
}`
	assert.Equal(t, want, string(b))

	b, err = Marshal(NewRecord(Collection{Name: "A"}, 1, combo[1:]))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "external_url")
	assert.Contains(t, string(b), "Laser & Fire", "no HTML escaping")
}

func writeRecord(t *testing.T, dir string, id int, image string) string {
	t.Helper()
	rec := NewRecord(Collection{Name: "A", Description: "d", BaseImageURL: "ipfs://PLACEHOLDER/"}, id, combo)
	if image != "" {
		rec.Image = image
	}
	path := filepath.Join(dir, strconv.Itoa(id)+".json")
	require.NoError(t, WriteRecord(path, rec))
	return path
}

func readRecord(t *testing.T, path string) model.Record {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec model.Record
	require.NoError(t, json.Unmarshal(b, &rec))
	return rec
}

func TestRewrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeRecord(t, dir, 0, "ipfs://PLACEHOLDER/0.png")
	writeRecord(t, dir, 1, "")

	base := FinalBaseURL("https://ipfs.io/ipfs/", "Qm123")
	rw := &Rewriter{Concurrency: 2}

	n, err := rw.Rewrite(context.Background(), dir, base, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first, err := os.ReadFile(path)
	require.NoError(t, err)
	rec := readRecord(t, path)
	assert.Equal(t, "https://ipfs.io/ipfs/Qm123/0.png", rec.Image)
	assert.Equal(t, "A #0", rec.Name, "other fields untouched")
	assert.Len(t, rec.Attributes, 2)
	assert.Equal(t, "https://ipfs.io/ipfs/Qm123/1.png", readRecord(t, filepath.Join(dir, "1.json")).Image)

	// Idempotent.
	_, err = rw.Rewrite(context.Background(), dir, base, "png")
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestRewrite_ThreadsExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeRecord(t, dir, 3, "")

	_, err := (&Rewriter{}).Rewrite(context.Background(), dir, "https://gw/ipfs/cid/", "gif")
	require.NoError(t, err)
	assert.Equal(t, "https://gw/ipfs/cid/3.gif", readRecord(t, path).Image)
}

func TestRewrite_NestedAndIgnored(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "metadata")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	path := writeRecord(t, nested, 5, "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "__MACOSX"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "__MACOSX", "._5.json"), []byte{0, 1}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	n, err := (&Rewriter{}).Rewrite(context.Background(), dir, "https://gw/c/", "png")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "https://gw/c/5.png", readRecord(t, path).Image)
}

func TestRewrite_MalformedAbortsBatch(t *testing.T) {
	dir := t.TempDir()
	good := writeRecord(t, dir, 0, "ipfs://PLACEHOLDER/0.png")
	before, err := os.ReadFile(good)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), []byte(`{"name": `), 0o644))

	n, err := (&Rewriter{}).Rewrite(context.Background(), dir, "https://gw/c/", "png")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "1.json", pe.File)
	assert.Zero(t, n)

	after, err := os.ReadFile(good)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "no file is written when parsing fails")
}

func TestRewrite_KeepsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.json")
	in := `{"name":"A #0","image":"ipfs://PLACEHOLDER/0.png","edition":7,"dna":"abc",` +
		`"attributes":[{"trait_type":"bg","value":"red","display_type":"string"}]}`
	require.NoError(t, os.WriteFile(path, []byte(in), 0o644))

	_, err := (&Rewriter{}).Rewrite(context.Background(), dir, "https://gw/c/", "png")
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, map[string]any{
		"name":    "A #0",
		"image":   "https://gw/c/0.png",
		"edition": float64(7),
		"dna":     "abc",
		"attributes": []any{
			map[string]any{"trait_type": "bg", "value": "red", "display_type": "string"},
		},
	}, got)
	assert.Less(t, strings.Index(string(b), `"name"`), strings.Index(string(b), `"edition"`), "key order kept")
	assert.Contains(t, string(b), "\n    \"image\": \"https://gw/c/0.png\"")
}

func TestRewrite_AddsMissingImageAndRejectsNonObjects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "4.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"x & y"}`), 0o644))

	_, err := (&Rewriter{}).Rewrite(context.Background(), dir, "https://gw/c/?a=1&b=2/", "gif")
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"image": "https://gw/c/?a=1&b=2/4.gif"`, "no HTML escaping")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "5.json"), []byte(`[1, 2]`), 0o644))
	_, err = (&Rewriter{}).Rewrite(context.Background(), dir, "https://gw/c/", "gif")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "5.json", pe.File)
}
