package manifest

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tie/mcfetch/rules"
)

func readTestdata(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestParseIndex(t *testing.T) {
	x, err := ParseIndex(readTestdata(t, "index.json"))
	require.NoError(t, err)

	assert.Len(t, x.Versions, 4)
	assert.Equal(t, "23w31a", x.Versions[0].ID, "document order is kept")

	v, ok := x.LatestRelease()
	require.True(t, ok)
	assert.Equal(t, "1.20", v.ID)
	assert.Equal(t, Release, v.Type)
	assert.Equal(t, "b9bd2e3f7ec4f3b2c7d8d4c6c4f8c1c0b0a0d0e0", v.SHA1)
	assert.True(t, v.Compliant())
	assert.Equal(t, 2023, v.ReleaseTime.Year())

	s, ok := x.LatestSnapshot()
	require.True(t, ok)
	assert.Equal(t, Snapshot, s.Type)

	releases := x.Releases()
	require.Len(t, releases, 1)
	assert.Equal(t, "1.20", releases[0].ID)

	found := x.Search(regexp.MustCompile(`^1\.`))
	require.Len(t, found, 1)

	all := x.Filter(func(VersionSummary) bool { return true })
	assert.Equal(t, "rd-132211", all[0].ID, "filtered lists are oldest first")

	assert.Len(t, x.ByPhase(PhasePreClassic), 1)
	assert.Len(t, x.ByPhase(PhaseBeta), 1)
}

func TestParseIndexMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"no versions", `{"latest": {}}`},
		{"missing id", `{"versions": [{"type": "release", "url": "u"}]}`},
		{"unknown type", `{"versions": [{"id": "x", "type": "nightly", "url": "u"}]}`},
		{"missing url", `{"versions": [{"id": "x", "type": "release"}]}`},
		{"bad sha1", `{"versions": [{"id": "x", "type": "release", "url": "u", "sha1": "zz"}]}`},
		{"bad time", `{"versions": [{"id": "x", "type": "release", "url": "u", "time": "yesterday"}]}`},
		{"duplicate id", `{"versions": [{"id": "x", "type": "release", "url": "u"}, {"id": "x", "type": "release", "url": "u"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIndex([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseDocument(t *testing.T) {
	d, err := ParseDocument(readTestdata(t, "1.20.json"))
	require.NoError(t, err)

	assert.Equal(t, "1.20", d.ID)
	assert.Empty(t, d.Parent)
	assert.Equal(t, Release, d.Type)
	assert.Equal(t, 21, d.MinimumLauncherVersion)
	require.NotNil(t, d.JavaVersion)
	assert.Equal(t, 17, d.JavaVersion.Major)
	require.NotNil(t, d.AssetIndex)
	assert.Equal(t, "5", d.AssetIndex.ID)
	assert.EqualValues(t, 413541, d.AssetIndex.Size)

	require.Contains(t, d.Downloads, Client)
	assert.EqualValues(t, 23028853, d.Downloads[Client].Size)
	assert.NotContains(t, d.Downloads, ServerMappings)

	require.Len(t, d.Libraries, 3)
	logging := d.Libraries[0]
	assert.Equal(t, "com.mojang:logging", logging.Key())
	require.NotNil(t, logging.Artifact)
	assert.Empty(t, logging.Rules)

	natives := d.Libraries[1]
	assert.Equal(t, "org.lwjgl:lwjgl:natives-linux", natives.Key())
	assert.Len(t, natives.Rules, 1)

	legacy := d.Libraries[2]
	assert.Nil(t, legacy.Artifact)
	assert.True(t, legacy.Extract.Excluded("META-INF/MANIFEST.MF"))
	assert.False(t, legacy.Extract.Excluded("liblwjgl.so"))
	win := rules.Profile{OS: "windows", Arch: "x86_64"}
	name, a, ok := legacy.NativeClassifier(win)
	require.True(t, ok)
	assert.Equal(t, "natives-windows-64", name)
	assert.Equal(t, "org/lwjgl/lwjgl/lwjgl-platform/2.9.4-nightly-20150209/lwjgl-platform-2.9.4-nightly-20150209-natives-windows-64.jar", a.Path, "missing path is derived from the coordinate")
	_, _, ok = legacy.NativeClassifier(rules.Profile{OS: "osx"})
	assert.False(t, ok)

	require.Len(t, d.Arguments.Game, 3)
	assert.Equal(t, []string{"--username"}, d.Arguments.Game[0].Values)
	assert.Equal(t, []string{"--width", "${resolution_width}"}, d.Arguments.Game[2].Values)
	require.Len(t, d.Arguments.Game[2].Rules, 1)
	assert.Equal(t, rules.KindFeature, d.Arguments.Game[2].Rules[0].Conditions[0].Kind)

	require.Len(t, d.Arguments.JVM, 4)
	assert.Equal(t, rules.KindOSVersion, d.Arguments.JVM[1].Rules[0].Conditions[1].Kind)
}

func TestParseDocumentInheriting(t *testing.T) {
	d, err := ParseDocument(readTestdata(t, "fabric.json"))
	require.NoError(t, err)
	assert.Equal(t, "1.20", d.Parent)
	assert.Nil(t, d.JavaVersion)
	require.Len(t, d.Libraries, 2)

	loader := d.Libraries[0]
	require.NotNil(t, loader.Artifact)
	assert.Equal(t, "https://maven.fabricmc.net/net/fabricmc/fabric-loader/0.14.21/fabric-loader-0.14.21.jar", loader.Artifact.URL)
	assert.Nil(t, d.Libraries[1].Artifact, "maven library without digest has no artifact")
}

func TestParseDocumentParentID(t *testing.T) {
	d, err := ParseDocument([]byte(`{"id": "child", "parentId": "base"}`))
	require.NoError(t, err)
	assert.Equal(t, "base", d.Parent)
}

func TestParseDocumentErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not json", `[]`, ErrMalformed},
		{"missing id", `{"type": "release"}`, ErrMalformed},
		{"download without size", `{"id": "x", "downloads": {"client": {"url": "u", "sha1": "e575a48efda46cf88111ba05b624ef90c520eef1"}}}`, ErrMalformed},
		{"download without url", `{"id": "x", "downloads": {"client": {"sha1": "e575a48efda46cf88111ba05b624ef90c520eef1", "size": 1}}}`, ErrMalformed},
		{"library without name", `{"id": "x", "libraries": [{}]}`, ErrMalformed},
		{"library bad coordinate", `{"id": "x", "libraries": [{"name": "just-a-name"}]}`, ErrMalformed},
		{"rule without action", `{"id": "x", "libraries": [{"name": "a:b:1", "rules": [{"os": {"name": "linux"}}]}]}`, ErrMalformed},
		{"rule bad version pattern", `{"id": "x", "libraries": [{"name": "a:b:1", "rules": [{"action": "allow", "os": {"version": "("}}]}]}`, ErrMalformed},
		{"argument without value", `{"id": "x", "arguments": {"game": [{"rules": []}]}}`, ErrMalformed},
		{"java version without major", `{"id": "x", "javaVersion": {"component": "jre"}}`, ErrMalformed},
		{"asset index without id", `{"id": "x", "assetIndex": {"url": "u", "sha1": "e575a48efda46cf88111ba05b624ef90c520eef1", "size": 1}}`, ErrMalformed},
		{"newer schema", `{"id": "x", "minimumLauncherVersion": 22}`, ErrUnsupportedSchema},
		{"newer schema version", `{"id": "x", "schemaVersion": "22.1"}`, ErrUnsupportedSchema},
		{"bad schema version", `{"id": "x", "schemaVersion": "one"}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParserMaxSchema(t *testing.T) {
	p := Parser{MaxSchema: semver.MustParse("30")}
	_, err := p.ParseDocument([]byte(`{"id": "x", "minimumLauncherVersion": 22}`))
	assert.NoError(t, err)

	_, err = ParseDocument([]byte(`{"id": "x", "schemaVersion": "1.4"}`))
	assert.NoError(t, err)

	var perr *Error
	_, err = Parser{MaxSchema: semver.MustParse("9")}.ParseDocument([]byte(`{"id": "x", "minimumLauncherVersion": 18}`))
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "minimumLauncherVersion", perr.Field)
	assert.Equal(t, "x", perr.Doc)
}

func TestParseAssetIndex(t *testing.T) {
	a, err := ParseAssetIndex("5", readTestdata(t, "assets.json"))
	require.NoError(t, err)
	assert.Equal(t, "5", a.ID)
	assert.False(t, a.Mirrored())
	assert.Equal(t, []string{
		"icons/icon_16x16.png",
		"minecraft/lang/en_us.json",
		"minecraft/sounds/ambient/cave/cave1.ogg",
	}, a.Paths())

	_, err = ParseAssetIndex("x", []byte(`{"objects": {"a": {"hash": "nope", "size": 1}}}`))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = ParseAssetIndex("x", []byte(`{}`))
	assert.ErrorIs(t, err, ErrMalformed)

	legacy, err := ParseAssetIndex("legacy", []byte(`{"virtual": true, "objects": {}}`))
	require.NoError(t, err)
	assert.True(t, legacy.Mirrored())
}

func TestCoordinate(t *testing.T) {
	c, err := ParseCoordinate("org.lwjgl:lwjgl:3.3.1:natives-linux")
	require.NoError(t, err)
	assert.Equal(t, "org.lwjgl:lwjgl:natives-linux", c.Key())
	assert.Equal(t, "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1-natives-linux.jar", c.Path(""))
	assert.Equal(t, "org.lwjgl:lwjgl:3.3.1:natives-linux", c.String())

	c, err = ParseCoordinate("de.oceanlabs.mcp:mcp_config:1.20@zip")
	require.NoError(t, err)
	assert.Equal(t, "de/oceanlabs/mcp/mcp_config/1.20/mcp_config-1.20.zip", c.Path(""))
	assert.Equal(t, "de/oceanlabs/mcp/mcp_config/1.20/mcp_config-1.20-srg.zip", c.Path("srg"))

	for _, bad := range []string{"", "a:b", "a::1", "a:b:c:d:e"} {
		_, err := ParseCoordinate(bad)
		assert.Error(t, err, bad)
	}
}

func TestPhaseOf(t *testing.T) {
	assert.Equal(t, PhasePreClassic, PhaseOf("rd-132211", OldAlpha))
	assert.Equal(t, PhaseClassic, PhaseOf("c0.30_01c", OldAlpha))
	assert.Equal(t, PhaseIndev, PhaseOf("in-20100223", OldAlpha))
	assert.Equal(t, PhaseInfdev, PhaseOf("inf-20100618", OldAlpha))
	assert.Equal(t, PhaseAlpha, PhaseOf("a1.2.6", OldAlpha))
	assert.Equal(t, PhaseBeta, PhaseOf("b1.7.3", OldBeta))
	assert.Equal(t, PhaseRelease, PhaseOf("23w31a", Snapshot))
}
