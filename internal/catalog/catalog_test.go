package catalog

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

func writeImage(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := imaging.New(4, 4, color.NRGBA{R: 200, A: 255})
	require.NoError(t, imaging.Save(img, path))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuild(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "1_Background", "Sunset.png"))
	writeImage(t, filepath.Join(root, "1_Background", "Night.jpg"))
	writeImage(t, filepath.Join(root, "2_Eyes", "Laser.gif"))
	writeFile(t, filepath.Join(root, "2_Eyes", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "readme.md"), "ignored")

	cat, err := Build(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, cat, 2)

	assert.Equal(t, "1_Background", cat[0].Name)
	assert.Equal(t, "1_Background", cat[0].Directory)
	assert.Equal(t, []model.Trait{
		{Name: "Night", File: "Night.jpg", Rarity: 1},
		{Name: "Sunset", File: "Sunset.png", Rarity: 1},
	}, cat[0].Traits)

	assert.Equal(t, "2_Eyes", cat[1].Name)
	assert.Equal(t, []model.Trait{{Name: "Laser", File: "Laser.gif", Rarity: 1}}, cat[1].Traits)
}

func TestBuild_SkipsLayersWithoutImages(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "Body", "Blue.png"))
	writeFile(t, filepath.Join(root, "Docs", "a.txt"), "x")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Empty"), 0o755))

	cat, err := Build(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, cat, 1)
	assert.Equal(t, "Body", cat[0].Name)
}

func TestBuild_EmptyCatalog(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Docs", "a.txt"), "x")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Empty"), 0o755))

	_, err := Build(context.Background(), root)
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestBuild_CorruptImageFailsWholeBuild(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "A_Background", "Good.png"))
	writeImage(t, filepath.Join(root, "B_Eyes", "Good.png"))
	writeFile(t, filepath.Join(root, "B_Eyes", "Broken.png"), "definitely not a png")

	cat, err := Build(context.Background(), root)
	require.Error(t, err)
	assert.Nil(t, cat)

	var de *DecodeError
	require.True(t, errors.As(err, &de), "want *DecodeError, got %T", err)
	assert.Equal(t, "B_Eyes", de.Layer)
	assert.Equal(t, "Broken.png", de.File)
	assert.Contains(t, err.Error(), "Broken.png")
}

func TestBuild_DuplicateTraitNames(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "Background", "Red.png"))
	writeImage(t, filepath.Join(root, "Background", "Red.gif"))

	_, err := Build(context.Background(), root)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Background", ve.Field)
	assert.Contains(t, ve.Message, `trait "Red"`)
}

func TestBuild_RarityManifest(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "Background", "Common.png"))
	writeImage(t, filepath.Join(root, "Background", "Rare.png"))
	writeFile(t, filepath.Join(root, ManifestFile), "Background:\n  Common: 3\n")

	cat, err := Build(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, cat, 1)
	assert.Equal(t, 3.0, cat[0].Traits[0].Rarity)
	assert.Equal(t, 1.0, cat[0].Traits[1].Rarity)
}

func TestBuild_RarityManifestRejectsNonPositive(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "Background", "Common.png"))
	writeFile(t, filepath.Join(root, ManifestFile), "Background:\n  Common: 0\n")

	_, err := Build(context.Background(), root)
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestBuild_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "Background", "Common.png"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveRoot(t *testing.T) {
	t.Run("descends wrapper folder", func(t *testing.T) {
		root := t.TempDir()
		writeImage(t, filepath.Join(root, "layers", "Background", "a.png"))
		writeImage(t, filepath.Join(root, "layers", "Eyes", "b.png"))
		require.NoError(t, os.MkdirAll(filepath.Join(root, "__MACOSX"), 0o755))

		got, err := ResolveRoot(root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "layers"), got)
	})

	t.Run("keeps single layer folder", func(t *testing.T) {
		root := t.TempDir()
		writeImage(t, filepath.Join(root, "Background", "a.png"))

		got, err := ResolveRoot(root)
		require.NoError(t, err)
		assert.Equal(t, root, got)
	})
}

func TestIsImageFile(t *testing.T) {
	for name, want := range map[string]bool{
		"a.png": true, "b.JPG": true, "c.jpeg": true, "d.gif": true,
		"e.webp": false, "f.txt": false, "png": false,
	} {
		assert.Equal(t, want, IsImageFile(name), name)
	}
}
