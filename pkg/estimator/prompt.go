package estimator

import "strings"

// ImageMIMEType is the content type sent for every uploaded photo.
const ImageMIMEType = "image/jpeg"

const basePrompt = `你是一位講求「客觀寫實」的營養師。請依據圖片與文字估算。
1. 【份量校正】：請謹慎判斷容器大小。若無比例尺，請預設為「一般一人份量」。勿將液體體積全部算作固體食物熱量。
2. 【避免高估】：請依據「視覺可見」的內容估算，以「保守、不浮誇」的數值為主。
3. 【簡化回覆】：reasoning 欄位請限制在「100 字以內」的重點備註。
4. 回覆純 JSON: food_name(菜名), calories(整份熱量 Number), protein, fat, carbs, reasoning(String)。
5. 請用繁體中文回覆。`

// BuildPrompt returns the instruction text for one estimate. Notes are
// appended as supplementary description.
func BuildPrompt(notes []string) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	kept := make([]string, 0, len(notes))
	for _, n := range notes {
		if n = strings.TrimSpace(n); n != "" {
			kept = append(kept, n)
		}
	}
	if len(kept) > 0 {
		b.WriteString("\n補充說明：")
		b.WriteString(strings.Join(kept, "、"))
	}
	return b.String()
}

func checkEvidence(images [][]byte, notes []string) error {
	if len(images) > 0 {
		return nil
	}
	for _, n := range notes {
		if strings.TrimSpace(n) != "" {
			return nil
		}
	}
	return ErrNoEvidence
}
