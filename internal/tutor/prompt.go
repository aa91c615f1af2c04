package tutor

import (
	"fmt"
	"strings"

	"github.com/MrWong99/lingoxa/internal/grammar"
	"github.com/MrWong99/lingoxa/pkg/types"
)

// DefaultSystemPrompt is the tutor persona used when no system prompt is
// configured.
const DefaultSystemPrompt = `You are a friendly English conversation tutor for Vietnamese learners.
Answer in short, natural English that suits the learner's level.
When the learner made a mistake, use the corrected form naturally in your reply.
End with a short follow-up question that keeps the conversation going.`

const translationSystemPrompt = `You explain English tutoring replies to Vietnamese learners.
Write in Vietnamese only. Translate the tutor's reply, then briefly explain each listed grammar mistake and its correction.
Keep English example words in quotes.`

// buildPrompt renders the user message sent to the conversational model.
func buildPrompt(summary, text string, errs []types.GrammarError) string {
	var b strings.Builder
	b.WriteString(summary)
	if summary != "" && !strings.HasSuffix(summary, "\n") {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Learner said: %q\n", text)
	if len(errs) == 0 {
		b.WriteString("Detected grammar issues: none\n")
		return b.String()
	}
	b.WriteString("Detected grammar issues:\n")
	for _, e := range errs {
		fmt.Fprintf(&b, "- %q should be %q", e.IncorrectSpan, e.Correction)
		if e.Explanation != "" {
			fmt.Fprintf(&b, " (%s)", e.Explanation)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// translationPrompt asks for a Vietnamese rendering of reply with notes on errs.
func translationPrompt(text, reply string, errs []types.GrammarError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Learner said: %q\nTutor replied: %q\n", text, reply)
	if len(errs) > 0 {
		b.WriteString("Grammar mistakes:\n")
		for _, e := range errs {
			fmt.Fprintf(&b, "- %q -> %q\n", e.IncorrectSpan, e.Correction)
		}
	}
	return b.String()
}

// ruleHintsVi are short Vietnamese explanations per grammar rule.
var ruleHintsVi = map[string]string{
	grammar.RuleProgressive:   "sau động từ \"to be\" cần dùng động từ dạng V-ing để nói về hành động đang diễn ra",
	grammar.RuleStative:       "động từ chỉ trạng thái (like, know, want...) thường không chia ở thì tiếp diễn",
	grammar.RuleBeAgreement:   "động từ \"to be\" phải hợp với chủ ngữ: I am, he/she/it is, we/you/they are",
	grammar.RuleThirdPerson:   "với chủ ngữ he/she/it, động từ ở thì hiện tại đơn phải thêm -s hoặc -es",
	grammar.RuleDoAgreement:   "với chủ ngữ he/she/it, dùng \"does/doesn't\" thay cho \"do/don't\"",
	grammar.RuleArticle:       "dùng \"an\" trước từ bắt đầu bằng âm nguyên âm",
	grammar.RuleModalInfinite: "sau động từ khuyết thiếu (can, must, should...) dùng động từ nguyên mẫu không có \"to\"",
}

// templateExplanation builds a Vietnamese explanation without a model call.
// It is never empty.
func templateExplanation(reply string, errs []types.GrammarError) string {
	var b strings.Builder
	if len(errs) == 0 {
		b.WriteString("Câu của bạn không có lỗi ngữ pháp nào.")
	} else {
		b.WriteString("Một số điểm cần sửa trong câu của bạn:\n")
		for _, e := range errs {
			fmt.Fprintf(&b, "- \"%s\" nên sửa thành \"%s\"", e.IncorrectSpan, e.Correction)
			if hint, ok := ruleHintsVi[e.Rule]; ok {
				fmt.Fprintf(&b, ": %s", hint)
			}
			b.WriteString(".\n")
		}
	}
	if reply = strings.TrimSpace(reply); reply != "" {
		fmt.Fprintf(&b, "\nGia sư trả lời: \"%s\"", reply)
	}
	return strings.TrimSpace(b.String())
}
