package synthesis

import (
	"fmt"
	"sort"
)

var voiceNames = map[int]string{
	// 普通发音人
	0: "度小美 - 默认女声",
	1: "度小宇 - 男声",
	3: "度逍遥(基础) - 情感合成",
	4: "度丫丫 - 情感合成-童声",

	// 精品发音人
	5003: "度逍遥(精品)",
	5118: "度小鹿",
	106:  "度博文",
	110:  "度小童",
	111:  "度小萌",
	103:  "度米朵",
	5:    "度小娇",
}

type Voice struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ResolveVoiceName 未知发音人返回 "voice <id>"
func ResolveVoiceName(id int) string {
	if name, ok := voiceNames[id]; ok {
		return name
	}
	return fmt.Sprintf("voice %d", id)
}

func KnownVoice(id int) bool {
	_, ok := voiceNames[id]
	return ok
}

// Voices 按 id 升序
func Voices() []Voice {
	out := make([]Voice, 0, len(voiceNames))
	for id, name := range voiceNames {
		out = append(out, Voice{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
