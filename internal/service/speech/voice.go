package speech

import "strings"

const defaultVolcengineVoice = "en_male_corey_emo_v2_mars_bigtts"

// 简写到火山音色的映射
var volcengineVoiceAliases = map[string]string{
	"en_default": "en_female_amy_jupiter_bigtts",
	"en_male":    "en_male_glen_emo_v2_mars_bigtts",
	"en_female":  "en_female_skye_emo_v2_mars_bigtts",
}

const (
	resourceStandard = "volc.service_type.10029"
	resourceMega     = "volc.megatts.default"
	resourceSeed     = "seed-tts-2.0"
)

var seedVoiceHints = []string{
	"bigtts", "seed", "megatts",
	"uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars",
}

// ResolveVoiceAlias 返回别名对应的音色，未知别名原样返回。
func ResolveVoiceAlias(voice string) string {
	voice = strings.TrimSpace(voice)
	if mapped, ok := volcengineVoiceAliases[strings.ToLower(voice)]; ok {
		return mapped
	}
	return voice
}

// speakerCandidates 依次尝试请求音色、配置的默认音色与内置兜底音色，去重且不区分大小写。
func speakerCandidates(requested, configured string) []string {
	var out []string
	for _, v := range []string{requested, configured, defaultVolcengineVoice} {
		v = ResolveVoiceAlias(v)
		if v == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if strings.EqualFold(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// resourceCandidates 根据音色推断资源 ID：复刻音色走 mega，大模型音色优先 seed。
func resourceCandidates(voice string) []string {
	if strings.HasPrefix(voice, "S_") {
		return []string{resourceMega}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range seedVoiceHints {
		if strings.Contains(normalized, hint) {
			return []string{resourceSeed, resourceStandard}
		}
	}
	return []string{resourceStandard, resourceSeed}
}
