package settings

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/John-Robertt/blend2egg/internal/domain"
)

func TestDefault(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	assert.Equal(t, Default(), s)
	assert.Equal(t, PhysicsBuiltin, s.PhysicsEngine)
	assert.Equal(t, "", s.BlenderDir)
	assert.False(t, s.AppendExt)
	assert.Equal(t, PipelineEgg, s.Pipeline)
	assert.Equal(t, -1, s.StartFrame)
	assert.Equal(t, -1, s.EndFrame)
	assert.Equal(t, -1, s.FPS)
	assert.Equal(t, "", s.CharName)
	assert.Equal(t, AnimNone, s.AnimType)
	assert.Equal(t, CoordZ, s.CoordinateSystem)
}

func TestNew_PartialOverridesKeepDefaults(t *testing.T) {
	s, err := New(WithFPS(24), WithCoordinateSystem(CoordY))
	require.NoError(t, err)

	want := Default()
	want.FPS = 24
	want.CoordinateSystem = CoordY
	assert.Equal(t, want, s)
}

func TestWith_DoesNotMutateReceiver(t *testing.T) {
	base := Default()
	changed, err := base.With(WithCharName("hero"), WithAnimType(AnimChan))
	require.NoError(t, err)

	assert.Equal(t, Default(), base)
	assert.Equal(t, "hero", changed.CharName)
	assert.Equal(t, AnimChan, changed.AnimType)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		code string
	}{
		{name: "unknown pipeline", opts: []Option{WithPipeline("bam")}, code: domain.ErrCodePipelineUnknown},
		{name: "bad physics", opts: []Option{WithPhysicsEngine("ode")}, code: domain.ErrCodeSettingsInvalid},
		{name: "bad anim type", opts: []Option{WithAnimType("both")}, code: domain.ErrCodeSettingsInvalid},
		{name: "bad coordinate system", opts: []Option{WithCoordinateSystem("x")}, code: domain.ErrCodeSettingsInvalid},
		{name: "start below -1", opts: []Option{WithStartFrame(-2)}, code: domain.ErrCodeSettingsInvalid},
		{name: "end before start", opts: []Option{WithStartFrame(10), WithEndFrame(5)}, code: domain.ErrCodeSettingsInvalid},
		{name: "zero fps", opts: []Option{WithFPS(0)}, code: domain.ErrCodeSettingsInvalid},
		{name: "valid range", opts: []Option{WithStartFrame(1), WithEndFrame(40), WithFPS(30)}},
		{name: "end only", opts: []Option{WithEndFrame(12)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, domain.Code(err))
		})
	}
}

func TestAsMap_HasExactlyTheTenKeys(t *testing.T) {
	m := Default().AsMap()
	require.Len(t, m, 10)
	for _, k := range Keys() {
		_, ok := m[k]
		assert.True(t, ok, "missing key %q", k)
	}
	assert.Nil(t, m[KeyCharName])
}

func TestMarshalJSON_FieldOrderAndNullCharName(t *testing.T) {
	b, err := json.Marshal(Default())
	require.NoError(t, err)

	want := `{"physics_engine":"builtin","blender_dir":"","append_ext":false,"pipeline":"egg",` +
		`"start_frame":-1,"end_frame":-1,"fps":-1,"char_name":null,"anim_type":"none","coordinate_system":"z"}`
	assert.JSONEq(t, want, string(b))
	assert.Equal(t, want, string(b))
}

func TestUnmarshalJSON_MissingKeysKeepDefaults(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"fps":25,"char_name":"Bob"}`), &s))

	want := Default()
	want.FPS = 25
	want.CharName = "Bob"
	assert.Equal(t, want, s)
}

func TestFromMap_Rejects(t *testing.T) {
	tests := []struct {
		name string
		m    map[string]any
	}{
		{name: "unknown key", m: map[string]any{"animations": nil}},
		{name: "wrong string type", m: map[string]any{KeyPipeline: 1}},
		{name: "fractional frame", m: map[string]any{KeyFPS: 23.5}},
		{name: "wrong bool type", m: map[string]any{KeyAppendExt: "yes"}},
		{name: "wrong char name type", m: map[string]any{KeyCharName: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.m)
			require.Error(t, err)
			assert.Equal(t, domain.ErrCodeSettingsInvalid, domain.Code(err))
		})
	}
}

func genSettings() *rapid.Generator[Settings] {
	return rapid.Custom(func(t *rapid.T) Settings {
		start := rapid.IntRange(-1, 500).Draw(t, "start")
		end := rapid.IntRange(-1, 500).Draw(t, "end")
		if start >= 0 && end >= 0 && end < start {
			end = start
		}
		return Settings{
			PhysicsEngine:    rapid.SampledFrom([]PhysicsEngine{PhysicsBuiltin, PhysicsBullet}).Draw(t, "physics"),
			BlenderDir:       rapid.StringMatching(`(/[a-z0-9 ._-]{1,8}){0,3}`).Draw(t, "blender_dir"),
			AppendExt:        rapid.Bool().Draw(t, "append_ext"),
			Pipeline:         PipelineEgg,
			StartFrame:       start,
			EndFrame:         end,
			FPS:              rapid.OneOf(rapid.Just(-1), rapid.IntRange(1, 240)).Draw(t, "fps"),
			CharName:         rapid.StringMatching(`[A-Za-z0-9_]{0,12}`).Draw(t, "char_name"),
			AnimType:         rapid.SampledFrom([]AnimType{AnimNone, AnimModel, AnimChan}).Draw(t, "anim_type"),
			CoordinateSystem: rapid.SampledFrom([]CoordinateSystem{CoordY, CoordZ}).Draw(t, "cs"),
		}
	})
}

func TestProperty_MapRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := genSettings().Draw(rt, "settings")

		got, err := FromMap(s.AsMap())
		if err != nil {
			rt.Fatalf("FromMap: %v", err)
		}
		if got != s {
			rt.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, s)
		}
	})
}

func TestProperty_JSONRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := genSettings().Draw(rt, "settings")

		b, err := json.Marshal(s)
		if err != nil {
			rt.Fatalf("Marshal: %v", err)
		}
		var got Settings
		if err := json.Unmarshal(b, &got); err != nil {
			rt.Fatalf("Unmarshal: %v", err)
		}
		if got != s {
			rt.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, s)
		}
	})
}
