package llm

import "strings"

// MinutesSystemPrompt frames the model as a Japanese meeting-minutes editor.
const MinutesSystemPrompt = `あなたは日本語の会議の議事録を作成するアシスタントです。
話者ごとの文字起こし結果を受け取り、Markdown形式の議事録を返してください。
話者ラベル (SPEAKER_00 など) は文字起こしの表記をそのまま使ってください。
文字起こしにない内容を推測で補わないでください。`

const minutesInstructions = `以下の文字起こし結果から議事録を作成してください：
- 誤字脱字を修正
- 適切な句読点を追加
- 重要なポイントを箇条書きで整理
- アクションアイテムがあれば抽出`

// BuildMinutesPrompt wraps a transcript with the drafting instructions.
func BuildMinutesPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString(minutesInstructions)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(transcript))
	b.WriteString("\n")
	return b.String()
}
