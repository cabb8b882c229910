package assistant

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// reportCharBudget caps how much report text goes into the conversation.
// Enough for a typical lab report; keeps token usage predictable.
const reportCharBudget = 12000

// ExtractReportText pulls the plain text out of a PDF health report.
func ExtractReportText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open report: %w", err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract report text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", fmt.Errorf("read report text: %w", err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", fmt.Errorf("report contains no extractable text")
	}
	return text, nil
}

// TruncateToBudget shortens text to at most max runes, cutting at the last
// whitespace so no word is split mid-way.
func TruncateToBudget(text string, max int) string {
	if max <= 0 || len([]rune(text)) <= max {
		return text
	}

	runes := []rune(text)[:max]
	cut := len(runes)
	for i := len(runes) - 1; i > max/2; i-- {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			cut = i
			break
		}
	}
	return string(runes[:cut]) + "\n[report truncated]"
}
