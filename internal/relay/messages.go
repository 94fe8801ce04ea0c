package relay

import "fmt"

const (
	msgDownloadFailed = "❌ Не вдалося завантажити медіа. Можливо, воно приватне або недоступне."
	msgSendFailed     = "❌ Помилка при відправці. Спробуйте пізніше."
	msgBusy           = "⏳ Забагато завантажень одночасно. Спробуйте за хвилину."
)

func msgRateLimited(minutes int) string {
	return fmt.Sprintf("⏳ Забагато запитів. Спробуйте знову через %d хв.", minutes)
}

func msgTooLarge(maxSize int64) string {
	return fmt.Sprintf("❌ Файл завеликий для відправки (понад %d МБ).", maxSize/(1024*1024))
}

func caption(sender string) string {
	return "📲 " + sender
}
