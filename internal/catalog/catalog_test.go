package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByPackage(t *testing.T) {
	tests := []struct {
		pkg      string
		wantName string
		wantKids bool
	}{
		{pkg: "com.netflix.ninja", wantName: "Netflix"},
		{pkg: "com.google.android.youtube.tv", wantName: "YouTube"},
		{pkg: "com.amazon.firetv.youtube", wantName: "YouTube"},
		{pkg: "com.amazon.firetv.youtube.kids", wantName: "YouTube Kids", wantKids: true},
		{pkg: "com.amazon.firetv.pvod", wantName: "Prime Video"},
		{pkg: "in.startv.hotstar.dplus.tv", wantName: "JioHotstar"},
		{pkg: "com.disney.disneyplus.tv", wantName: "Disney+"},
	}

	for _, tt := range tests {
		t.Run(tt.pkg, func(t *testing.T) {
			app, ok := Default().FindByPackage(tt.pkg)
			require.True(t, ok)
			assert.Equal(t, tt.wantName, app.DisplayName)
			assert.Equal(t, tt.wantKids, app.IsKidsVariant)
		})
	}

	_, ok := Default().FindByPackage("com.unknown.package")
	assert.False(t, ok)
}

func TestFindVariants(t *testing.T) {
	packages := func(apps []App) []string {
		out := make([]string, len(apps))
		for i, a := range apps {
			out[i] = a.PackageName
		}
		return out
	}

	youtube := packages(Default().FindVariants("YouTube"))
	assert.Contains(t, youtube, "com.google.android.youtube.tv")
	assert.Contains(t, youtube, "com.amazon.firetv.youtube")

	prime := packages(Default().FindVariants("Prime Video"))
	assert.Contains(t, prime, "com.amazon.avod")
	assert.Contains(t, prime, "com.amazon.firetv.pvod")

	assert.Empty(t, Default().FindVariants("NonExistentApp"))
}

func TestUniqueNames(t *testing.T) {
	names := Default().UniqueNames()
	count := func(name string) int {
		n := 0
		for _, v := range names {
			if v == name {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, count("YouTube"))
	assert.Equal(t, 1, count("Prime Video"))
}

func TestKidsVariantsMarked(t *testing.T) {
	for _, app := range Default().FindVariants("YouTube Kids") {
		assert.True(t, app.IsKidsVariant, app.PackageName)
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
apps:
  - package: com.a
    name: A
  - package: com.a
    name: A again
`))
	assert.Error(t, err)
}

func TestParseRejectsMissingFields(t *testing.T) {
	_, err := Parse([]byte("apps:\n  - package: com.a\n"))
	assert.Error(t, err)
}
