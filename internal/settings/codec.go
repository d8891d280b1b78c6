package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// AsMap 返回扁平的 key/value 映射（恰好十个键）。CharName 为空时对应 nil。
func (s Settings) AsMap() map[string]any {
	var charName any
	if s.CharName != "" {
		charName = s.CharName
	}
	return map[string]any{
		KeyPhysicsEngine:    string(s.PhysicsEngine),
		KeyBlenderDir:       s.BlenderDir,
		KeyAppendExt:        s.AppendExt,
		KeyPipeline:         s.Pipeline,
		KeyStartFrame:       s.StartFrame,
		KeyEndFrame:         s.EndFrame,
		KeyFPS:              s.FPS,
		KeyCharName:         charName,
		KeyAnimType:         string(s.AnimType),
		KeyCoordinateSystem: string(s.CoordinateSystem),
	}
}

// FromMap 是 AsMap 的逆操作。缺失的键保持默认值；未知键与类型不符都会报错。
// 结果经过 Validate。
func FromMap(m map[string]any) (Settings, error) {
	s := Default()

	var unknown []string
	for k := range m {
		if !isKey(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Settings{}, invalid("unknown keys: %v", unknown)
	}

	var err error
	str := func(key string, dst *string) {
		v, ok := m[key]
		if !ok || err != nil {
			return
		}
		sv, isStr := v.(string)
		if !isStr {
			err = invalid("%s must be a string, got %T", key, v)
			return
		}
		*dst = sv
	}
	integer := func(key string, dst *int) {
		v, ok := m[key]
		if !ok || err != nil {
			return
		}
		n, e := toInt(v)
		if e != nil {
			err = invalid("%s: %v", key, e)
			return
		}
		*dst = n
	}

	var physics, anim, coord string
	physics, anim, coord = string(s.PhysicsEngine), string(s.AnimType), string(s.CoordinateSystem)

	str(KeyPhysicsEngine, &physics)
	str(KeyBlenderDir, &s.BlenderDir)
	str(KeyPipeline, &s.Pipeline)
	str(KeyAnimType, &anim)
	str(KeyCoordinateSystem, &coord)
	integer(KeyStartFrame, &s.StartFrame)
	integer(KeyEndFrame, &s.EndFrame)
	integer(KeyFPS, &s.FPS)
	if err != nil {
		return Settings{}, err
	}

	if v, ok := m[KeyAppendExt]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return Settings{}, invalid("%s must be a bool, got %T", KeyAppendExt, v)
		}
		s.AppendExt = b
	}
	if v, ok := m[KeyCharName]; ok && v != nil {
		name, isStr := v.(string)
		if !isStr {
			return Settings{}, invalid("%s must be a string or null, got %T", KeyCharName, v)
		}
		s.CharName = name
	}

	s.PhysicsEngine = PhysicsEngine(physics)
	s.AnimType = AnimType(anim)
	s.CoordinateSystem = CoordinateSystem(coord)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// wire 固定 JSON 的字段顺序（与 Keys 一致）。
type wire struct {
	PhysicsEngine    string  `json:"physics_engine"`
	BlenderDir       string  `json:"blender_dir"`
	AppendExt        bool    `json:"append_ext"`
	Pipeline         string  `json:"pipeline"`
	StartFrame       int     `json:"start_frame"`
	EndFrame         int     `json:"end_frame"`
	FPS              int     `json:"fps"`
	CharName         *string `json:"char_name"`
	AnimType         string  `json:"anim_type"`
	CoordinateSystem string  `json:"coordinate_system"`
}

func (s Settings) MarshalJSON() ([]byte, error) {
	w := wire{
		PhysicsEngine:    string(s.PhysicsEngine),
		BlenderDir:       s.BlenderDir,
		AppendExt:        s.AppendExt,
		Pipeline:         s.Pipeline,
		StartFrame:       s.StartFrame,
		EndFrame:         s.EndFrame,
		FPS:              s.FPS,
		AnimType:         string(s.AnimType),
		CoordinateSystem: string(s.CoordinateSystem),
	}
	if s.CharName != "" {
		name := s.CharName
		w.CharName = &name
	}
	return json.Marshal(w)
}

func (s *Settings) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	if m == nil {
		return invalid("settings document is null")
	}
	v, err := FromMap(m)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func isKey(k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("not an integer: %s", n)
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("must be an integer, got %T", v)
	}
}
