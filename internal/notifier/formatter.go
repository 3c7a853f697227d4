package notifier

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"StageSentinel/internal/model"
)

// won formats a currency amount rounded to whole units with separators.
func won(v float64) string {
	return "₩" + humanize.Comma(int64(math.Round(v)))
}

// FormatAllocation renders the per-symbol line stored as Alert.Message.
func FormatAllocation(a model.Allocation) string {
	if a.Price <= 0 {
		return fmt.Sprintf("%s: 0주 (예산 %s, 가격 조회 실패)", a.Symbol, won(a.Budget))
	}
	return fmt.Sprintf("%s: %s주 × %s (예산 %s)", a.Symbol, humanize.Comma(a.Quantity), won(a.Price), won(a.Budget))
}

// FormatDrawdown renders the distance of price from the reported high;
// drawdownPct is in percent.
func FormatDrawdown(price, high, drawdownPct float64) string {
	return fmt.Sprintf("현재가 %s, 고점 %s 대비 -%.1f%%", won(price), won(high), drawdownPct)
}

// FormatBatch composes the single outbound message for one minute batch.
// The header carries the batch minute, the stage label and the RSI at
// trigger of the first alert.
func FormatBatch(batch []model.Alert, loc *time.Location) string {
	if len(batch) == 0 {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	first := batch[0]
	var b strings.Builder

	title := "매수 신호"
	icon := "🔔"
	if first.StageLabel == model.RebalanceLabel {
		title = "연간 리밸런싱"
		icon = "📅"
	}
	b.WriteString(fmt.Sprintf("%s <b>%s</b> | %s\n", icon, title, first.CreatedAt.In(loc).Format("2006-01-02 15:04")))
	if first.StageLabel == model.RebalanceLabel {
		b.WriteString("단계: " + first.StageLabel + "\n\n")
	} else {
		b.WriteString(fmt.Sprintf("단계: %s | RSI: %.2f\n\n", first.StageLabel, first.RSI))
	}

	for _, a := range batch {
		line := a.Message
		if line == "" {
			line = FormatAllocation(model.Allocation{Symbol: a.Symbol, Budget: a.Budget, Price: a.Price, Quantity: a.Quantity})
		}
		b.WriteString("• " + line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatCycleResult renders a cycle outcome as a command reply.
func FormatCycleResult(r model.CycleResult) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>%s</b> %s", r.Kind, r.Status))
	if r.Reason != "" {
		b.WriteString(" (" + r.Reason + ")")
	}
	b.WriteString("\n")
	if r.RSI != nil {
		b.WriteString(fmt.Sprintf("RSI: %.2f\n", *r.RSI))
	}
	if r.StageLabel != "" {
		b.WriteString("단계: " + r.StageLabel + "\n")
	}
	for _, a := range r.Allocations {
		b.WriteString("• " + FormatAllocation(a) + "\n")
	}
	if r.Field != "" {
		b.WriteString("설정 항목: " + html.EscapeString(r.Field) + "\n")
	}
	if r.Error != "" {
		b.WriteString("오류: " + html.EscapeString(r.Error) + "\n")
	}
	b.WriteString("run " + r.RunID)
	return b.String()
}

// FormatAlertList renders recent alerts for the /alerts command.
func FormatAlertList(alerts []model.Alert, now time.Time, loc *time.Location) string {
	if len(alerts) == 0 {
		return "최근 알림이 없습니다."
	}
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>최근 알림</b> (%d건)\n", len(alerts)))
	for _, a := range alerts {
		state := "대기"
		if a.Sent {
			state = "발송"
		}
		b.WriteString(fmt.Sprintf("#%d %s %s %s주 RSI %.2f [%s] %s\n",
			a.ID, a.StageLabel, a.Symbol, humanize.Comma(a.Quantity), a.RSI, state,
			humanize.RelTime(a.CreatedAt, now, "전", "후")))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatStatus renders the active settings and latest indicator values.
// rsi and sma are nil when the history is too short.
func FormatStatus(s model.Settings, rsi, sma *float64, stage model.Stage) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>StageSentinel</b> | %s\n\n", s.MainSymbol))
	if rsi != nil {
		b.WriteString(fmt.Sprintf("RSI(%d): %.2f\n", s.RSIPeriod, *rsi))
	} else {
		b.WriteString(fmt.Sprintf("RSI(%d): 데이터 부족\n", s.RSIPeriod))
	}
	if sma != nil {
		b.WriteString(fmt.Sprintf("SMA(%d): %s\n", s.SMAWindow, won(*sma)))
	}
	if label := stage.Label(); label != "" {
		b.WriteString("현재 단계: " + label + "\n")
	} else {
		b.WriteString("현재 단계: 없음\n")
	}
	levels := make([]string, len(s.BuyLevels))
	for i, l := range s.BuyLevels {
		amount := 0.0
		if i < len(s.StageAmounts) {
			amount = s.StageAmounts[i]
		}
		levels[i] = fmt.Sprintf("%s ≤%.0f %s", model.Stage(i).Label(), l, won(amount))
	}
	b.WriteString("단계 기준: " + strings.Join(levels, " / ") + "\n")
	b.WriteString(fmt.Sprintf("점검 시각: %s (±%d분, %s)\n", strings.Join(s.CheckTimes, ", "), s.ToleranceMinutes, s.Timezone))
	weights := make([]string, len(s.Basket))
	for i, e := range s.Basket {
		weights[i] = fmt.Sprintf("%s %.0f", e.Symbol, e.Weight)
	}
	b.WriteString("바스켓: " + strings.Join(weights, ", "))
	return b.String()
}
