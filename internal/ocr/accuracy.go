package ocr

import (
	"strings"
	"unicode/utf8"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"
)

// Accuracy compares recognized text against a known transcription using
// word error rate and character error rate. Whitespace is normalized first.
func Accuracy(expected, actual string) models.TextAccuracy {
	ref := strings.Fields(expected)
	hyp := strings.Fields(actual)

	acc := models.TextAccuracy{ReferenceWords: len(ref)}
	if len(ref) == 0 {
		if len(hyp) > 0 {
			acc.WER, acc.CER = 1, 1
		}
		return acc
	}

	acc.WER, _ = wer.WER(ref, hyp)

	refText := strings.Join(ref, " ")
	hypText := strings.Join(hyp, " ")
	acc.CER = float64(levenshtein.Distance(refText, hypText)) / float64(utf8.RuneCountInString(refText))
	return acc
}
