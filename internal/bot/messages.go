package bot

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aixgo-dev/nutrilog/pkg/records"
)

// User-facing replies.
const (
	msgFoodGreeting     = "喵喵！開始記錄！\n請傳送食物照片或文字說明。\n中途想取消記錄請輸入「取消」喵\n\n⚠️ 注意：輸入計算後，AI 分析需要等待約 5~10 秒，請耐心等候結果，不要重複輸入喔！"
	msgExerciseGreeting = "你好！請輸入運動內容喵！中途想取消記錄請輸入「取消」喵"

	msgFoodCancelled     = "取消記錄，我要回去睡覺了喵~"
	msgExerciseCancelled = "已取消運動紀錄。"

	msgNoData       = "沒資料喵！請先傳照片或文字。"
	msgImageFailed  = "圖片讀取失敗QQ"
	msgGenericError = "哇哇，分析或存檔失敗了 QQ"
)

const (
	// UnknownUser replaces a display name that could not be fetched.
	UnknownUser = "未知使用者"
	// UnknownFood replaces an empty estimated food name.
	UnknownFood = "未知食物"

	dateLayout = "2006/01/02"
)

func imageAck(images, texts int) string {
	return fmt.Sprintf("📸 已收到 %d 張圖片！(目前：%d 圖, %d 文字)\n還有資料請繼續上傳，若完成請輸入「OK」或「計算」喵", images, images, texts)
}

func textAck(images, texts int) string {
	return fmt.Sprintf("📝 已記錄文字 (目前：%d 圖, %d 文字)\n還有資料請繼續上傳，若完成請輸入「OK」或「計算」喵", images, texts)
}

func foodSummary(rec records.Record) string {
	return fmt.Sprintf("🍽️ 分析完成並已存檔！\n\n📅 日期：%s\n👤 紀錄者：%s\n🍱 名稱：%s\n🔥 熱量：%s kcal\n💪 蛋白質：%sg | 脂肪：%sg | 碳水：%sg\n\n已寫入資料庫喵！",
		rec.Date.Format(dateLayout), rec.User, rec.Name,
		formatNumber(rec.Calories), formatNumber(rec.Protein), formatNumber(rec.Fat), formatNumber(rec.Carbs))
}

func exerciseSummary(rec records.Record) string {
	return fmt.Sprintf("✅ 運動紀錄完成！\n\n📅 日期：%s\n👤 紀錄者：%s\n🏃 項目：%s\n\n繼續保持喵！💪",
		rec.Date.Format(dateLayout), rec.User, rec.Name)
}

// formatNumber drops a trailing ".0" so 650 prints as "650" and 20.5 as
// "20.5".
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// dateOnly is used in logs.
func dateOnly(t time.Time) string {
	return t.Format(dateLayout)
}
