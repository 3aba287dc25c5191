package emotion

import (
	"math"
	"strings"
)

// Label 表示TTS可以接受的情绪标签。
type Label string

const (
	Neutral Label = "neutral"
	Happy   Label = "happy"
	Sad     Label = "sad"
	Angry   Label = "angry"
	Excited Label = "excited"
)

// Decision 给出情绪识别结果以及推荐情绪强度。
type Decision struct {
	Emotion Label   `json:"emotion"`
	Scale   float32 `json:"scale"`
	Score   int     `json:"-"`
}

// IsNeutral reports whether the decision carries no tone worth forwarding.
func (d Decision) IsNeutral() bool {
	return d.Emotion == "" || d.Emotion == Neutral
}

// 潜在客户在电话里常见的说法，按情绪归类
var keywordBuckets = map[Label][]string{
	Happy: {
		"sounds good", "sounds great", "that's nice", "i like", "love that", "appreciate", "thanks",
		"thank you", "perfect", "awesome", "great", "fair enough", "makes sense", "haha", "lol",
	},
	Sad: {
		"tight budget", "can't afford", "money's tight", "rough year", "laid off", "cutbacks",
		"unfortunately", "wish i could", "sorry", "tough", "struggling", "not doing great",
	},
	Angry: {
		"not interested", "stop calling", "take me off", "waste of time", "scam", "ridiculous",
		"annoying", "busy", "hang up", "seriously", "come on", "leave me alone", "pushy", "how did you get",
		"don't call", "no thanks", "i said no",
	},
	Excited: {
		"wow", "no way", "really?", "tell me more", "can't wait", "sign me up", "that's amazing",
		"that's incredible", "let's do it", "when can we start", "seriously?", "unbelievable",
	},
}

// 推销时让人反感的话术；推销员这么说，客户多半不耐烦
var pushyPhrases = []string{
	"limited time", "act now", "only today", "guarantee", "you need this", "trust me",
	"last chance", "everyone is buying", "no brainer", "sign today", "special offer",
}

var punctuationBoost = map[Label]int{
	Happy:   2,
	Excited: 3,
}

// Analyze 根据推销员的话与客户回复推断回复应使用的语音情绪。
func Analyze(pitch, reply string) Decision {
	pitchScore := scoreText(pitch)
	replyScore := scoreText(reply)

	finalScore := replyScore
	// 回复本身情绪不明显时，参考推销员的说法
	if finalScore.Score == 0 {
		if pushy := scorePushy(pitch); pushy > 0 {
			finalScore = Decision{Emotion: Angry, Score: pushy}
		} else if pitchScore.Score > 0 {
			finalScore = coerceEmotionFromPitch(pitchScore)
		}
	}

	if finalScore.Score == 0 {
		return Decision{Emotion: Neutral, Scale: 3, Score: 0}
	}

	scale := 2 + float32(finalScore.Score)/4 // 基础为2，强度随得分提升
	if finalScore.Emotion == Excited {
		scale += 1
	}
	if finalScore.Emotion == Angry {
		scale = float32(math.Min(4.0, float64(scale)))
	}
	if finalScore.Emotion == Sad {
		scale = float32(math.Min(3.5, float64(scale)))
	}

	if scale < 1 {
		scale = 1
	}
	if scale > 5 {
		scale = 5
	}

	return Decision{Emotion: finalScore.Emotion, Scale: scale, Score: finalScore.Score}
}

func scoreText(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	exclamations := strings.Count(text, "!")
	if exclamations > 0 {
		scores[Excited] += exclamations * punctuationBoost[Excited]
		if exclamations == 1 {
			scores[Happy] += punctuationBoost[Happy]
		}
	}

	// map 遍历无序，同分时按固定顺序取，保证结果稳定
	bestLabel := Neutral
	bestScore := 0
	for _, label := range []Label{Angry, Excited, Happy, Sad} {
		if s := scores[label]; s > bestScore {
			bestScore = s
			bestLabel = label
		}
	}

	if bestScore == 0 {
		return Decision{Emotion: Neutral}
	}
	return Decision{Emotion: bestLabel, Score: bestScore}
}

func scorePushy(pitch string) int {
	normalized := strings.ToLower(pitch)
	score := 0
	for _, phrase := range pushyPhrases {
		if strings.Contains(normalized, phrase) {
			score += 3
		}
	}
	return score
}

func coerceEmotionFromPitch(pitch Decision) Decision {
	switch pitch.Emotion {
	case Angry:
		// 推销员不耐烦，客户也会跟着冷下来
		return Decision{Emotion: Angry, Score: pitch.Score}
	case Excited, Happy:
		return Decision{Emotion: Happy, Score: pitch.Score / 2}
	default:
		return Decision{Emotion: Neutral}
	}
}
